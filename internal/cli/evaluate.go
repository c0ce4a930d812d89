package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/happyhackingspace/slu"
	"github.com/spf13/cobra"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var modelPath string

	cmd := &cobra.Command{
		Use:   "evaluate <config.yaml>",
		Short: "Evaluate a deployed model on the test split",
		Args:  cobra.ExactArgs(1),
		Example: `  slu evaluate config.yaml
  slu evaluate config.yaml --model ./deploy/model.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Evaluating", "config", args[0])
			start := time.Now()
			m, err := slu.Evaluate(args[0], modelPath)
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))

			fmt.Printf("Slot accuracy: %.1f%% (%d/%d tokens)\n",
				m.SlotAccuracy()*100, m.SlotCorrect, m.SlotTotal)
			fmt.Printf("Sequence accuracy: %.1f%% (%d/%d utterances)\n",
				m.SequenceAccuracy()*100, m.SeqCorrect, m.SeqTotal)
			fmt.Printf("Intent accuracy: %.1f%% (%d/%d utterances)\n",
				m.IntentAccuracy()*100, m.IntentCorrect, m.IntentTotal)
			fmt.Printf("Joint accuracy: %.1f%%\n", m.Joint()*100)
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to deploy directory or model file (default: the config's deploy path)")
	return cmd
}
