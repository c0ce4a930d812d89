// Package slu tags spoken-language utterances with a slot label per
// token and a single intent per utterance.
//
// It provides a joint CNN-BiLSTM-CRF model: convolution branches over
// word embeddings feed a bidirectional LSTM, a linear-chain CRF decodes
// the slot sequence and a pooled classification head picks the intent.
//
//	t, _ := slu.New()
//	r, _ := t.PredictText("play some jazz")
//	fmt.Println(r.Intent)           // "play_music"
//	fmt.Println(r.Slots[2].Label)   // "B-genre"
package slu

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/happyhackingspace/slu/internal/deploy"
	"github.com/happyhackingspace/slu/internal/textutil"
	"github.com/happyhackingspace/slu/model"
)

// Tagger wraps a deployed model together with its frozen vocabularies.
type Tagger struct {
	art      *deploy.Artifact
	tokenize textutil.Tokenizer
}

// Slot is one token with its decoded slot label.
type Slot struct {
	Token string `json:"token"`
	Label string `json:"label"`
}

// Result holds the joint prediction for a single utterance.
type Result struct {
	Intent string `json:"intent"`
	Slots  []Slot `json:"slots"`
}

// New loads the tagger from "model.json", searching the deploy
// directory, the current directory and parent directories up to the
// module root (where go.mod lives).
func New() (*Tagger, error) {
	path, err := findModel(deploy.ArtifactName)
	if err != nil {
		return nil, fmt.Errorf("slu: %w", err)
	}
	return Load(path)
}

func findModel(name string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		for _, candidate := range []string{
			filepath.Join(dir, name),
			filepath.Join(dir, "deploy", name),
		} {
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		// Stop at module root
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("%s not found", name)
}

// Load loads a tagger from a deploy directory or model file.
func Load(path string) (*Tagger, error) {
	art, err := deploy.Load(path)
	if err != nil {
		return nil, fmt.Errorf("slu: %w", err)
	}
	tokenize, err := textutil.ForName(art.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("slu: %w", err)
	}
	return &Tagger{art: art, tokenize: tokenize}, nil
}

// PredictText tokenizes text with the tokenizer recorded in the
// artifact and predicts its slots and intent.
func (t *Tagger) PredictText(text string) (*Result, error) {
	return t.Predict(t.tokenize(text))
}

// Predict tags an already-tokenized utterance. Tokens outside the
// training vocabulary are mapped to the unknown id, never rejected.
func (t *Tagger) Predict(tokens []string) (*Result, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("slu: empty utterance")
	}

	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = t.art.Vocab.ID(tok)
	}

	emissions, logits, _ := t.art.Network.Forward(ids, false, nil)
	path, _, err := t.art.Network.CRF.Decode(emissions)
	if err != nil {
		return nil, fmt.Errorf("slu: %w", err)
	}

	r := &Result{
		Intent: t.art.IntentLabels.ToStr[model.Argmax(logits)],
		Slots:  make([]Slot, len(tokens)),
	}
	for i, tok := range tokens {
		r.Slots[i] = Slot{Token: tok, Label: t.art.SlotLabels.ToStr[path[i]]}
	}
	return r, nil
}

// Labels returns the frozen slot and intent label sets, in id order.
func (t *Tagger) Labels() (slots, intents []string) {
	return t.art.SlotLabels.ToStr, t.art.IntentLabels.ToStr
}
