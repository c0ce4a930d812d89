package cli

import (
	"log/slog"
	"time"

	"github.com/happyhackingspace/slu"
	"github.com/spf13/cobra"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "train <config.yaml>",
		Short: "Train a model on a parallel token/slot/intent corpus",
		Args:  cobra.ExactArgs(1),
		Example: `  slu train config.yaml
  slu train config.yaml --strict
  slu train config.yaml -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := args[0]
			slog.Info("Training tagger", "config", configPath)
			start := time.Now()
			state, err := slu.Train(cmd.Context(), configPath, &slu.TrainConfig{Strict: strict})
			if err != nil {
				return err
			}
			slog.Info("Training completed",
				"steps", state.Step,
				"best_accuracy", state.BestAccuracy,
				"duration", time.Since(start))
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Abort on malformed corpus lines instead of skipping them")
	return cmd
}
