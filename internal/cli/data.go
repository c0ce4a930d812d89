package cli

import (
	"fmt"
	"log/slog"

	"github.com/happyhackingspace/slu/internal/config"
	"github.com/happyhackingspace/slu/internal/dataset"
	"github.com/spf13/cobra"
)

func (c *CLI) newDataCommand() *cobra.Command {
	dataCmd := &cobra.Command{
		Use:   "data",
		Short: "Inspect the training corpus",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats <config.yaml>",
		Short: "Print corpus, vocabulary and label statistics",
		Args:  cobra.ExactArgs(1),
		Example: `  slu data stats config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dataStats(args[0])
		},
	}

	dataCmd.AddCommand(statsCmd)
	return dataCmd
}

func dataStats(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	trainEx, err := dataset.LoadSplit(cfg.Dataset.Train.Input, cfg.Dataset.Train.Slots, cfg.Dataset.Train.Intents, false)
	if err != nil {
		return err
	}
	testEx, err := dataset.LoadSplit(cfg.Dataset.Test.Input, cfg.Dataset.Test.Slots, cfg.Dataset.Test.Intents, false)
	if err != nil {
		return err
	}
	slog.Debug("Corpus loaded", "train", len(trainEx), "test", len(testEx))

	vocab := dataset.BuildVocab(trainEx, cfg.Dataset.Train.VocabMinFreq)
	slots := dataset.BuildSlotIndex(trainEx)
	intents := dataset.BuildIntentIndex(trainEx)

	printSplitStats("train", trainEx)
	printSplitStats("test", testEx)
	fmt.Printf("Vocabulary: %d tokens (min frequency %d, reserved %s/%s)\n",
		vocab.Size(), vocab.MinFreq, dataset.PadToken, dataset.UnkToken)
	fmt.Printf("Slot labels (%d): %v\n", slots.Size(), slots.ToStr)
	fmt.Printf("Intent labels (%d): %v\n", intents.Size(), intents.ToStr)
	return nil
}

func printSplitStats(name string, examples []dataset.Example) {
	tokens, longest := 0, 0
	for _, ex := range examples {
		tokens += len(ex.Tokens)
		longest = max(longest, len(ex.Tokens))
	}
	avg := 0.0
	if len(examples) > 0 {
		avg = float64(tokens) / float64(len(examples))
	}
	fmt.Printf("%s: %d utterances, %d tokens (avg %.1f, longest %d)\n",
		name, len(examples), tokens, avg, longest)
}
