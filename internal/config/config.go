// Package config loads and validates the YAML training configuration.
// Validation runs before any dataset I/O so a malformed configuration
// fails fast with the offending key.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/happyhackingspace/slu/model"
)

// ModelType is the only architecture this package accepts.
const ModelType = "cnn_bilstm_crf"

// Error reports a malformed configuration value.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Config is the full configuration document.
type Config struct {
	Model     Model   `yaml:"model"`
	Tokenizer string  `yaml:"tokenizer"`
	Dataset   Dataset `yaml:"dataset"`
	Train     Train   `yaml:"train"`
	Deploy    Deploy  `yaml:"deploy"`
	GPUDevice int     `yaml:"gpu_device"`
}

// Model selects the architecture and its tensor widths.
type Model struct {
	Type       string     `yaml:"type"`
	Parameters Parameters `yaml:"parameters"`
}

// Parameters mirrors model.parameters from the configuration file.
type Parameters struct {
	WordEmbeddingDims int              `yaml:"word_embedding_dims"`
	HiddenDims        int              `yaml:"hidden_dims"`
	ChannelDims       int              `yaml:"channel_dims"`
	ConvConfigs       []model.ConvSpec `yaml:"conv_configs"`
	LSTMNumLayers     int              `yaml:"lstm_num_layers"`
	LSTMDropout       float64          `yaml:"lstm_dropout"`
}

// Split names the three parallel files of one dataset split.
type Split struct {
	Input        string `yaml:"input"`
	Slots        string `yaml:"slots"`
	Intents      string `yaml:"intents"`
	VocabMinFreq int    `yaml:"vocab_min_freq"`
}

// Dataset holds the train and test splits.
type Dataset struct {
	Train Split `yaml:"train"`
	Test  Split `yaml:"test"`
}

// Train holds the training schedule and optimizer settings.
type Train struct {
	Epochs           int     `yaml:"epochs"`
	BatchSize        int     `yaml:"batch_size"`
	SequenceLength   int     `yaml:"sequence_length"`
	EvalSteps        int     `yaml:"eval_steps"`
	LearningRate     float64 `yaml:"learning_rate"`
	IntentLossWeight float64 `yaml:"intent_loss_weight"`
	Seed             int64   `yaml:"seed"`
}

// Deploy names the destination of the serialized artifact.
type Deploy struct {
	Path string `yaml:"path"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Tokenizer: "whitespace",
		GPUDevice: -1,
		Train: Train{
			LearningRate:     0.001,
			IntentLossWeight: 1.0,
			Seed:             1,
		},
	}
}

// Validate checks every recognized key. The first failure is returned
// as an *Error naming the key.
func (c *Config) Validate() error {
	if c.Model.Type != ModelType {
		return &Error{Key: "model.type", Reason: fmt.Sprintf("unknown model type %q (want %q)", c.Model.Type, ModelType)}
	}
	p := c.Model.Parameters
	if p.WordEmbeddingDims <= 0 {
		return &Error{Key: "model.parameters.word_embedding_dims", Reason: "must be positive"}
	}
	if p.HiddenDims <= 0 {
		return &Error{Key: "model.parameters.hidden_dims", Reason: "must be positive"}
	}
	if len(p.ConvConfigs) == 0 {
		return &Error{Key: "model.parameters.conv_configs", Reason: "at least one convolution branch is required"}
	}
	for i, spec := range p.ConvConfigs {
		key := fmt.Sprintf("model.parameters.conv_configs[%d]", i)
		if spec.Channels <= 0 {
			return &Error{Key: key + ".channel_size", Reason: "must be positive"}
		}
		if spec.Kernel <= 0 {
			return &Error{Key: key + ".kernel_size", Reason: "must be positive"}
		}
		if spec.Kernel != 2*spec.Padding+1 {
			return &Error{Key: key + ".padding", Reason: fmt.Sprintf("padding %d does not preserve sequence length for kernel %d (want kernel == 2*padding+1)", spec.Padding, spec.Kernel)}
		}
	}
	if p.LSTMNumLayers <= 0 {
		return &Error{Key: "model.parameters.lstm_num_layers", Reason: "must be positive"}
	}
	if p.LSTMDropout < 0 || p.LSTMDropout >= 1 {
		return &Error{Key: "model.parameters.lstm_dropout", Reason: "must be in [0, 1)"}
	}

	for _, split := range []struct {
		name string
		s    Split
	}{{"train", c.Dataset.Train}, {"test", c.Dataset.Test}} {
		if split.s.Input == "" {
			return &Error{Key: "dataset." + split.name + ".input", Reason: "path is required"}
		}
		if split.s.Slots == "" {
			return &Error{Key: "dataset." + split.name + ".slots", Reason: "path is required"}
		}
		if split.s.Intents == "" {
			return &Error{Key: "dataset." + split.name + ".intents", Reason: "path is required"}
		}
	}
	if c.Dataset.Train.VocabMinFreq < 0 {
		return &Error{Key: "dataset.train.vocab_min_freq", Reason: "must not be negative"}
	}

	t := c.Train
	if t.Epochs <= 0 {
		return &Error{Key: "train.epochs", Reason: "must be positive"}
	}
	if t.BatchSize <= 0 {
		return &Error{Key: "train.batch_size", Reason: "must be positive"}
	}
	if t.SequenceLength <= 0 {
		return &Error{Key: "train.sequence_length", Reason: "must be positive"}
	}
	if t.EvalSteps < 0 {
		return &Error{Key: "train.eval_steps", Reason: "must not be negative"}
	}
	if t.LearningRate <= 0 {
		return &Error{Key: "train.learning_rate", Reason: "must be positive"}
	}
	if t.IntentLossWeight < 0 {
		return &Error{Key: "train.intent_loss_weight", Reason: "must not be negative"}
	}

	if c.Deploy.Path == "" {
		return &Error{Key: "deploy.path", Reason: "path is required"}
	}
	return nil
}

// NetworkConfig translates the validated parameters into the model's
// architecture config. Label counts come from the built vocabularies.
func (c *Config) NetworkConfig(vocabSize, numSlots, numIntents int) model.Config {
	p := c.Model.Parameters
	return model.Config{
		WordEmbeddingDims: p.WordEmbeddingDims,
		HiddenDims:        p.HiddenDims,
		ConvSpecs:         p.ConvConfigs,
		LSTMNumLayers:     p.LSTMNumLayers,
		LSTMDropout:       p.LSTMDropout,
		VocabSize:         vocabSize,
		NumSlots:          numSlots,
		NumIntents:        numIntents,
	}
}
