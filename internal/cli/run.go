package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/happyhackingspace/slu"
	"github.com/spf13/cobra"
)

func (c *CLI) newRunCommand() *cobra.Command {
	var modelPath string

	cmd := &cobra.Command{
		Use:   "run [utterance]",
		Short: "Tag an utterance from the arguments or stdin",
		Args:  cobra.ArbitraryArgs,
		Example: `  # Tag an utterance directly
  slu run "play some jazz"

  # Pipe utterances from stdin, one per line
  cat utterances.txt | slu run

  # Use a custom deploy directory or model file
  slu run "play some jazz" --model ./deploy/model.json

  # Silent mode (no banner)
  slu run "play some jazz" -s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			tagger, err := loadTagger(modelPath)
			if err != nil {
				return err
			}
			slog.Debug("Model loaded", "duration", time.Since(start))

			if len(args) > 0 {
				return tagAndPrint(tagger, strings.Join(args, " "))
			}
			if isStdinTerminal() {
				return cmd.Help()
			}

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if err := tagAndPrint(tagger, line); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to deploy directory or model file (default: auto-detect)")
	return cmd
}

func loadTagger(modelPath string) (*slu.Tagger, error) {
	if modelPath != "" {
		slog.Debug("Loading custom model", "path", modelPath)
		return slu.Load(modelPath)
	}
	return slu.New()
}

func tagAndPrint(tagger *slu.Tagger, utterance string) error {
	start := time.Now()
	result, err := tagger.PredictText(utterance)
	if err != nil {
		return err
	}
	slog.Debug("Utterance tagged", "tokens", len(result.Slots), "duration", time.Since(start))

	output, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(output))
	return nil
}

func isStdinTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
