package slu

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/happyhackingspace/slu/internal/config"
	"github.com/happyhackingspace/slu/internal/dataset"
	"github.com/happyhackingspace/slu/internal/trainer"
	"github.com/happyhackingspace/slu/model"
)

// TrainConfig carries options not expressed in the configuration file.
type TrainConfig struct {
	// Strict aborts on any malformed corpus line instead of skipping it.
	Strict bool
}

// Train runs a full training job described by the YAML configuration at
// configPath: it loads both splits, builds the vocabularies from the
// training split, trains the network and deploys the artifact to the
// configured path. The returned state carries the final step count and
// the best joint accuracy seen during evaluation.
func Train(ctx context.Context, configPath string, tc *TrainConfig) (*trainer.State, error) {
	if tc == nil {
		tc = &TrainConfig{}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.GPUDevice >= 0 {
		slog.Info("gpu_device set but execution is CPU-only", "gpu_device", cfg.GPUDevice)
	}

	trainEx, testEx, err := loadSplits(cfg, tc.Strict)
	if err != nil {
		return nil, err
	}

	vocab := dataset.BuildVocab(trainEx, cfg.Dataset.Train.VocabMinFreq)
	slots := dataset.BuildSlotIndex(trainEx)
	intents := dataset.BuildIntentIndex(trainEx)
	slog.Info("Vocabularies built",
		"tokens", vocab.Size(),
		"slot_labels", slots.Size(),
		"intent_labels", intents.Size())

	rng := rand.New(rand.NewSource(cfg.Train.Seed))
	net := model.New(cfg.NetworkConfig(vocab.Size(), slots.Size(), intents.Size()), rng)

	tr, err := trainer.New(cfg, net, vocab, slots, intents, trainEx, testEx)
	if err != nil {
		return nil, err
	}
	return tr.Run(ctx)
}

// Evaluate scores a deployed model against the test split of the given
// configuration.
func Evaluate(configPath, modelPath string) (*trainer.Metrics, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if modelPath == "" {
		modelPath = cfg.Deploy.Path
	}

	t, err := Load(modelPath)
	if err != nil {
		return nil, err
	}

	testEx, err := dataset.LoadSplit(cfg.Dataset.Test.Input, cfg.Dataset.Test.Slots, cfg.Dataset.Test.Intents, false)
	if err != nil {
		return nil, err
	}
	if len(testEx) == 0 {
		return nil, fmt.Errorf("slu: test split is empty")
	}
	return trainer.Evaluate(t.art.Network, t.art.Vocab, t.art.SlotLabels, t.art.IntentLabels, testEx), nil
}

func loadSplits(cfg *config.Config, strict bool) (trainEx, testEx []dataset.Example, err error) {
	trainEx, err = dataset.LoadSplit(cfg.Dataset.Train.Input, cfg.Dataset.Train.Slots, cfg.Dataset.Train.Intents, strict)
	if err != nil {
		return nil, nil, err
	}
	if len(trainEx) == 0 {
		return nil, nil, fmt.Errorf("slu: training split is empty")
	}
	testEx, err = dataset.LoadSplit(cfg.Dataset.Test.Input, cfg.Dataset.Test.Slots, cfg.Dataset.Test.Intents, strict)
	if err != nil {
		return nil, nil, err
	}
	return trainEx, testEx, nil
}
