package textutil

import (
	"reflect"
	"testing"
)

func TestWords(t *testing.T) {
	got := Words("play some jazz, won't you?")
	want := []string{"play", "some", "jazz", "won", "t", "you"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %v, want %v", got, want)
	}
}

func TestWordsUnicode(t *testing.T) {
	got := Words("müzik çal lütfen")
	want := []string{"müzik", "çal", "lütfen"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %v, want %v", got, want)
	}
}

func TestWhitespace(t *testing.T) {
	got := Whitespace("  turn  the\tlights on ")
	want := []string{"turn", "the", "lights", "on"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Whitespace = %v, want %v", got, want)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("Turn\nThe  Lights   ON"); got != "turn the lights on" {
		t.Errorf("Normalize = %q", got)
	}
}

func TestForName(t *testing.T) {
	for _, name := range []string{"word", "whitespace", ""} {
		if _, err := ForName(name); err != nil {
			t.Errorf("ForName(%q) failed: %v", name, err)
		}
	}
	if _, err := ForName("bpe"); err == nil {
		t.Error("ForName should reject unknown tokenizer names")
	}
}
