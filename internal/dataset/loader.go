package dataset

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Example is one labeled utterance. Tokens and Slots are aligned 1:1.
type Example struct {
	Tokens []string
	Slots  []string
	Intent string
}

// FormatError reports a malformed example with its file and line.
type FormatError struct {
	File string
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("dataset: %s:%d: %s", e.File, e.Line, e.Msg)
}

// LabelError reports a label that is missing from a frozen label set,
// seen when evaluating against labels absent from the training split.
type LabelError struct {
	Kind  string // "slot" or "intent"
	Label string
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("dataset: unseen %s label %q", e.Kind, e.Label)
}

// LoadSplit reads the three parallel files of one split: one example
// per line, whitespace-delimited, slot tags aligned with tokens and a
// single intent per line.
//
// A malformed example is skipped with a warning unless strict is set,
// in which case the first FormatError aborts the load. Mismatched line
// counts across the three files are always fatal.
func LoadSplit(inputPath, slotsPath, intentsPath string, strict bool) ([]Example, error) {
	inputLines, err := readLines(inputPath)
	if err != nil {
		return nil, err
	}
	slotLines, err := readLines(slotsPath)
	if err != nil {
		return nil, err
	}
	intentLines, err := readLines(intentsPath)
	if err != nil {
		return nil, err
	}

	if len(slotLines) != len(inputLines) {
		return nil, &FormatError{File: slotsPath, Line: len(slotLines),
			Msg: fmt.Sprintf("%d lines but %s has %d", len(slotLines), inputPath, len(inputLines))}
	}
	if len(intentLines) != len(inputLines) {
		return nil, &FormatError{File: intentsPath, Line: len(intentLines),
			Msg: fmt.Sprintf("%d lines but %s has %d", len(intentLines), inputPath, len(inputLines))}
	}

	examples := make([]Example, 0, len(inputLines))
	skipped := 0
	for i := range inputLines {
		ex, err := parseExample(inputPath, i+1, inputLines[i], slotLines[i], intentLines[i])
		if err != nil {
			if strict {
				return nil, err
			}
			slog.Warn("Skipping malformed example", "error", err)
			skipped++
			continue
		}
		examples = append(examples, ex)
	}

	if len(examples) == 0 {
		return nil, fmt.Errorf("dataset: no valid examples in %s", inputPath)
	}
	if skipped > 0 {
		slog.Info("Dataset loaded with skips", "file", inputPath, "examples", len(examples), "skipped", skipped)
	}
	return examples, nil
}

func parseExample(file string, line int, input, slots, intent string) (Example, error) {
	tokens := strings.Fields(input)
	tags := strings.Fields(slots)
	intents := strings.Fields(intent)

	if len(tokens) == 0 {
		return Example{}, &FormatError{File: file, Line: line, Msg: "empty token sequence"}
	}
	if len(tags) != len(tokens) {
		return Example{}, &FormatError{File: file, Line: line,
			Msg: fmt.Sprintf("%d slot tags for %d tokens", len(tags), len(tokens))}
	}
	if len(intents) != 1 {
		return Example{}, &FormatError{File: file, Line: line,
			Msg: fmt.Sprintf("expected one intent label, got %d", len(intents))}
	}
	return Example{Tokens: tokens, Slots: tags, Intent: intents[0]}, nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	return lines, nil
}
