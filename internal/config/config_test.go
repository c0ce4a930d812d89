package config

import (
	"errors"
	"strings"
	"testing"
)

const validYAML = `
model:
  type: cnn_bilstm_crf
  parameters:
    word_embedding_dims: 100
    hidden_dims: 128
    channel_dims: 128
    conv_configs:
      - {channel_size: 128, kernel_size: 3, padding: 1}
      - {channel_size: 128, kernel_size: 5, padding: 2}
    lstm_num_layers: 1
    lstm_dropout: 0.5
tokenizer: word
dataset:
  train: {input: data/train.in, slots: data/train.out, intents: data/train.label, vocab_min_freq: 2}
  test:  {input: data/test.in, slots: data/test.out, intents: data/test.label}
train:
  epochs: 10
  batch_size: 32
  sequence_length: 50
  eval_steps: 100
deploy:
  path: ./deploy/slu
gpu_device: -1
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Parameters.WordEmbeddingDims != 100 {
		t.Errorf("word_embedding_dims = %d", cfg.Model.Parameters.WordEmbeddingDims)
	}
	if len(cfg.Model.Parameters.ConvConfigs) != 2 {
		t.Fatalf("conv_configs length = %d", len(cfg.Model.Parameters.ConvConfigs))
	}
	if cfg.Model.Parameters.ConvConfigs[1].Kernel != 5 {
		t.Errorf("second kernel = %d", cfg.Model.Parameters.ConvConfigs[1].Kernel)
	}
	if cfg.Dataset.Train.VocabMinFreq != 2 {
		t.Errorf("vocab_min_freq = %d", cfg.Dataset.Train.VocabMinFreq)
	}
	// Defaults for keys the document omits.
	if cfg.Train.IntentLossWeight != 1.0 {
		t.Errorf("intent_loss_weight default = %v, want 1.0", cfg.Train.IntentLossWeight)
	}
	if cfg.Train.LearningRate != 0.001 {
		t.Errorf("learning_rate default = %v", cfg.Train.LearningRate)
	}
	if cfg.GPUDevice != -1 {
		t.Errorf("gpu_device = %d", cfg.GPUDevice)
	}
}

func TestUnknownModelType(t *testing.T) {
	doc := strings.Replace(validYAML, "cnn_bilstm_crf", "unknown_type", 1)
	_, err := Parse([]byte(doc))
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want config.Error", err)
	}
	if ce.Key != "model.type" {
		t.Errorf("error key = %q, want model.type", ce.Key)
	}
}

func TestValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		wantKey string
	}{
		{
			name:    "non-positive hidden dims",
			mutate:  func(s string) string { return strings.Replace(s, "hidden_dims: 128", "hidden_dims: 0", 1) },
			wantKey: "model.parameters.hidden_dims",
		},
		{
			name: "padding breaks same-length invariant",
			mutate: func(s string) string {
				return strings.Replace(s, "kernel_size: 5, padding: 2", "kernel_size: 5, padding: 1", 1)
			},
			wantKey: "model.parameters.conv_configs[1].padding",
		},
		{
			name:    "dropout out of range",
			mutate:  func(s string) string { return strings.Replace(s, "lstm_dropout: 0.5", "lstm_dropout: 1.0", 1) },
			wantKey: "model.parameters.lstm_dropout",
		},
		{
			name:    "missing dataset path",
			mutate:  func(s string) string { return strings.Replace(s, "input: data/train.in, ", "", 1) },
			wantKey: "dataset.train.input",
		},
		{
			name:    "non-positive epochs",
			mutate:  func(s string) string { return strings.Replace(s, "epochs: 10", "epochs: 0", 1) },
			wantKey: "train.epochs",
		},
		{
			name:    "missing deploy path",
			mutate:  func(s string) string { return strings.Replace(s, "path: ./deploy/slu", `path: ""`, 1) },
			wantKey: "deploy.path",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.mutate(validYAML)))
			var ce *Error
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want config.Error", err)
			}
			if ce.Key != tc.wantKey {
				t.Errorf("error key = %q, want %q", ce.Key, tc.wantKey)
			}
		})
	}
}
