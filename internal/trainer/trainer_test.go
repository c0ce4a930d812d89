package trainer

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/happyhackingspace/slu/internal/config"
	"github.com/happyhackingspace/slu/internal/dataset"
	"github.com/happyhackingspace/slu/internal/deploy"
	"github.com/happyhackingspace/slu/model"
)

func writeCorpus(t *testing.T, dir string) config.Dataset {
	t.Helper()
	files := map[string]string{
		"train.in":    "turn the lights on\nturn the lights off\nplay jazz music\nplay rock music\nturn the fan on\nplay blues music\n",
		"train.out":   "O O B-device O\nO O B-device O\nO B-genre O\nO B-genre O\nO O B-device O\nO B-genre O\n",
		"train.label": "control\ncontrol\nmusic\nmusic\ncontrol\nmusic\n",
		"test.in":     "turn the lights on\nplay jazz music\n",
		"test.out":    "O O B-device O\nO B-genre O\n",
		"test.label":  "control\nmusic\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return config.Dataset{
		Train: config.Split{
			Input:   filepath.Join(dir, "train.in"),
			Slots:   filepath.Join(dir, "train.out"),
			Intents: filepath.Join(dir, "train.label"),
		},
		Test: config.Split{
			Input:   filepath.Join(dir, "test.in"),
			Slots:   filepath.Join(dir, "test.out"),
			Intents: filepath.Join(dir, "test.label"),
		},
	}
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Model: config.Model{
			Type: config.ModelType,
			Parameters: config.Parameters{
				WordEmbeddingDims: 8,
				HiddenDims:        6,
				ConvConfigs:       []model.ConvSpec{{Channels: 6, Kernel: 3, Padding: 1}},
				LSTMNumLayers:     1,
				LSTMDropout:       0,
			},
		},
		Tokenizer: "whitespace",
		Dataset:   writeCorpus(t, dir),
		Train: config.Train{
			Epochs:           4,
			BatchSize:        3,
			SequenceLength:   10,
			EvalSteps:        4,
			LearningRate:     0.01,
			IntentLossWeight: 1.0,
			Seed:             42,
		},
		Deploy:    config.Deploy{Path: filepath.Join(dir, "deploy")},
		GPUDevice: -1,
	}
}

func setup(t *testing.T, cfg *config.Config) (*Trainer, *dataset.Vocab, *dataset.Index, *dataset.Index) {
	t.Helper()
	trainEx, err := dataset.LoadSplit(cfg.Dataset.Train.Input, cfg.Dataset.Train.Slots, cfg.Dataset.Train.Intents, true)
	if err != nil {
		t.Fatal(err)
	}
	testEx, err := dataset.LoadSplit(cfg.Dataset.Test.Input, cfg.Dataset.Test.Slots, cfg.Dataset.Test.Intents, true)
	if err != nil {
		t.Fatal(err)
	}

	vocab := dataset.BuildVocab(trainEx, 1)
	slots := dataset.BuildSlotIndex(trainEx)
	intents := dataset.BuildIntentIndex(trainEx)

	rng := rand.New(rand.NewSource(cfg.Train.Seed))
	net := model.New(cfg.NetworkConfig(vocab.Size(), slots.Size(), intents.Size()), rng)

	tr, err := New(cfg, net, vocab, slots, intents, trainEx, testEx)
	if err != nil {
		t.Fatal(err)
	}
	return tr, vocab, slots, intents
}

func TestRunCompletesAndDeploys(t *testing.T) {
	cfg := testConfig(t)
	tr, vocab, slots, intents := setup(t, cfg)

	state, err := tr.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// 6 examples, batch size 3 -> 2 steps per epoch, 4 epochs.
	if state.Step != 8 {
		t.Errorf("steps = %d, want 8", state.Step)
	}

	art, err := deploy.Load(cfg.Deploy.Path)
	if err != nil {
		t.Fatalf("deploy artifact missing: %v", err)
	}
	if art.Vocab.Size() != vocab.Size() {
		t.Errorf("artifact vocab size %d, want %d", art.Vocab.Size(), vocab.Size())
	}
	if art.SlotLabels.Size() != slots.Size() || art.IntentLabels.Size() != intents.Size() {
		t.Error("artifact label sets do not match the training label sets")
	}
	if art.Tokenizer != "whitespace" {
		t.Errorf("artifact tokenizer = %q", art.Tokenizer)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	cfg := testConfig(t)
	tr, _, _, _ := setup(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Run(ctx); err == nil {
		t.Fatal("Run with canceled context should fail")
	}
}

func TestEvaluateSkipsUnseenLabels(t *testing.T) {
	cfg := testConfig(t)
	tr, vocab, slots, intents := setup(t, cfg)

	// One example carries a slot label the training split never saw;
	// the other must still be scored.
	examples := []dataset.Example{
		{Tokens: []string{"turn", "it", "on"}, Slots: []string{"O", "B-never-seen", "O"}, Intent: "control"},
		{Tokens: []string{"play", "jazz", "music"}, Slots: []string{"O", "B-genre", "O"}, Intent: "music"},
	}
	m := Evaluate(tr.net, vocab, slots, intents, examples)
	if m.SeqTotal != 1 {
		t.Errorf("scored %d sequences, want 1 (unseen-label example skipped)", m.SeqTotal)
	}
	if m.IntentTotal != 1 {
		t.Errorf("scored %d intents, want 1", m.IntentTotal)
	}
}

func TestEvaluateMapsUnseenTokensToUnknown(t *testing.T) {
	cfg := testConfig(t)
	tr, vocab, slots, intents := setup(t, cfg)

	examples := []dataset.Example{
		{Tokens: []string{"zzz", "qqq"}, Slots: []string{"O", "O"}, Intent: "control"},
	}
	m := Evaluate(tr.net, vocab, slots, intents, examples)
	if m.SeqTotal != 1 {
		t.Errorf("out-of-vocabulary tokens must not prevent evaluation, scored %d", m.SeqTotal)
	}
}

func TestTrainingImprovesLoss(t *testing.T) {
	cfg := testConfig(t)
	cfg.Train.EvalSteps = 0
	tr, _, _, _ := setup(t, cfg)

	batches := dataset.MakeBatches(tr.train, len(tr.train), nil)
	first, err := tr.step(&batches[0])
	if err != nil {
		t.Fatal(err)
	}
	var last float64
	for _i := 0; _i < 40; _i++ {
		_ = _i
		last, err = tr.step(&batches[0])
		if err != nil {
			t.Fatal(err)
		}
	}
	if !(last < first) {
		t.Errorf("full-batch loss did not improve: first %v, last %v", first, last)
	}
}
