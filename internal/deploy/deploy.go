// Package deploy serializes the trained model together with its frozen
// vocabularies so inference needs nothing from the training corpus.
package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/happyhackingspace/slu/internal/dataset"
	"github.com/happyhackingspace/slu/model"
)

// ArtifactName is the file written inside the deploy directory.
const ArtifactName = "model.json"

// Artifact is the complete deployable state: vocabulary, both label
// sets, the tokenizer name recorded from the training configuration
// and every parameter tensor of the network.
type Artifact struct {
	SavedAt      time.Time      `json:"saved_at"`
	Tokenizer    string         `json:"tokenizer"`
	Vocab        *dataset.Vocab `json:"vocab"`
	SlotLabels   *dataset.Index `json:"slot_labels"`
	IntentLabels *dataset.Index `json:"intent_labels"`
	Network      *model.Network `json:"network"`
}

// Save writes the artifact under dir atomically: the JSON document goes
// to a temporary file in the same directory and is renamed into place,
// so a failed write never leaves a partial artifact behind.
func Save(dir string, a *Artifact) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	a.SavedAt = time.Now().UTC()
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("deploy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("deploy: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, ArtifactName)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("deploy: %w", err)
	}
	return nil
}

// Load reads an artifact from a deploy directory or a direct file path.
func Load(path string) (*Artifact, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ArtifactName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	if a.Vocab == nil || a.SlotLabels == nil || a.IntentLabels == nil || a.Network == nil {
		return nil, fmt.Errorf("deploy: artifact %s is incomplete", path)
	}
	return &a, nil
}
