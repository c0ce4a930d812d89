// Package textutil provides the tokenizers used to turn raw utterances
// into the token sequences the model consumes.
package textutil

import (
	"fmt"
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Words extracts word tokens from text (Unicode-aware, matching Python's (?u)\b\w+\b).
func Words(text string) []string {
	return wordRe.FindAllString(text, -1)
}

// Whitespace splits text on runs of whitespace. This is the tokenizer
// to use with corpora that are already tokenized one-utterance-per-line.
func Whitespace(text string) []string {
	return strings.Fields(text)
}

var (
	newlineRe    = regexp.MustCompile(`[\n\r]`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
)

// Normalize lowercases text and collapses newlines and runs of
// whitespace to single spaces.
func Normalize(text string) string {
	text = newlineRe.ReplaceAllString(strings.ToLower(text), " ")
	return multiSpaceRe.ReplaceAllString(text, " ")
}

// Tokenizer turns an utterance into tokens.
type Tokenizer func(string) []string

// ForName resolves a tokenizer by its configuration name. The name is
// recorded in the deploy artifact so inference tokenizes exactly like
// training did.
func ForName(name string) (Tokenizer, error) {
	switch name {
	case "word":
		return Words, nil
	case "whitespace", "":
		return Whitespace, nil
	default:
		return nil, fmt.Errorf("textutil: unknown tokenizer %q", name)
	}
}
