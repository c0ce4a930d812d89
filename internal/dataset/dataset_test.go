package dataset

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, input, slots, intents string) (string, string, string) {
	t.Helper()
	dir := t.TempDir()
	paths := [3]string{
		filepath.Join(dir, "seq.in"),
		filepath.Join(dir, "seq.out"),
		filepath.Join(dir, "label"),
	}
	for i, content := range []string{input, slots, intents} {
		if err := os.WriteFile(paths[i], []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return paths[0], paths[1], paths[2]
}

func TestLoadSplit(t *testing.T) {
	in, sl, it := writeFiles(t,
		"book a flight to boston\nplay some jazz\n",
		"O O O O B-city\nO O B-genre\n",
		"book_flight\nplay_music\n")

	examples, err := LoadSplit(in, sl, it, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(examples) != 2 {
		t.Fatalf("loaded %d examples, want 2", len(examples))
	}
	if examples[0].Intent != "book_flight" {
		t.Errorf("intent = %q", examples[0].Intent)
	}
	if len(examples[0].Tokens) != 5 || len(examples[0].Slots) != 5 {
		t.Errorf("alignment broken: %d tokens, %d slots", len(examples[0].Tokens), len(examples[0].Slots))
	}
}

func TestLoadSplitMisalignedExample(t *testing.T) {
	in, sl, it := writeFiles(t,
		"book a flight\nplay jazz\n",
		"O O\nO B-genre\n", // first line has 2 tags for 3 tokens
		"book_flight\nplay_music\n")

	// Lenient mode skips the malformed example.
	examples, err := LoadSplit(in, sl, it, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(examples) != 1 {
		t.Fatalf("loaded %d examples, want 1 after skip", len(examples))
	}

	// Strict mode surfaces the FormatError with line context.
	_, err = LoadSplit(in, sl, it, true)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FormatError", err)
	}
	if fe.Line != 1 {
		t.Errorf("error line = %d, want 1", fe.Line)
	}
}

func TestLoadSplitLineCountMismatch(t *testing.T) {
	in, sl, it := writeFiles(t,
		"book a flight\nplay jazz\n",
		"O O O\n",
		"book_flight\nplay_music\n")
	if _, err := LoadSplit(in, sl, it, false); err == nil {
		t.Fatal("mismatched line counts should be fatal")
	}
}

func TestBuildVocabMinFreq(t *testing.T) {
	examples := []Example{
		{Tokens: []string{"the", "cat", "sat"}, Slots: []string{"O", "O", "O"}, Intent: "a"},
		{Tokens: []string{"the", "dog", "sat"}, Slots: []string{"O", "O", "O"}, Intent: "a"},
	}
	v := BuildVocab(examples, 2)

	if v.ToStr[PadID] != PadToken || v.ToStr[UnkID] != UnkToken {
		t.Fatalf("reserved ids wrong: %v", v.ToStr[:2])
	}
	if v.ID("the") == UnkID || v.ID("sat") == UnkID {
		t.Error("frequent tokens should have their own ids")
	}
	if v.ID("cat") != UnkID || v.ID("dog") != UnkID {
		t.Error("rare tokens should map to unknown")
	}
	if v.ID("zebra") != UnkID {
		t.Error("unseen token should map to unknown")
	}
}

func TestEncodeUnseenLabels(t *testing.T) {
	train := []Example{{Tokens: []string{"hi"}, Slots: []string{"O"}, Intent: "greet"}}
	vocab := BuildVocab(train, 1)
	slots := BuildSlotIndex(train)
	intents := BuildIntentIndex(train)

	_, err := Encode(Example{Tokens: []string{"hi"}, Slots: []string{"B-x"}, Intent: "greet"},
		vocab, slots, intents, 0)
	var le *LabelError
	if !errors.As(err, &le) || le.Kind != "slot" {
		t.Fatalf("err = %v, want slot LabelError", err)
	}

	_, err = Encode(Example{Tokens: []string{"hi"}, Slots: []string{"O"}, Intent: "bye"},
		vocab, slots, intents, 0)
	if !errors.As(err, &le) || le.Kind != "intent" {
		t.Fatalf("err = %v, want intent LabelError", err)
	}
}

func TestEncodeTruncates(t *testing.T) {
	train := []Example{{Tokens: []string{"a", "b", "c", "d"}, Slots: []string{"O", "O", "O", "O"}, Intent: "x"}}
	vocab := BuildVocab(train, 1)
	slots := BuildSlotIndex(train)
	intents := BuildIntentIndex(train)

	enc, err := Encode(train[0], vocab, slots, intents, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc.Tokens) != 2 || len(enc.Slots) != 2 {
		t.Errorf("truncation failed: %d tokens", len(enc.Tokens))
	}
}

func TestMakeBatchesPadding(t *testing.T) {
	encoded := []Encoded{
		{Tokens: []int{2, 3, 4}, Slots: []int{0, 1, 0}, Intent: 0},
		{Tokens: []int{5}, Slots: []int{1}, Intent: 1},
	}
	batches := MakeBatches(encoded, 2, nil)
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	b := batches[0]
	if len(b.Tokens[1]) != 3 {
		t.Fatalf("batch width %d, want 3", len(b.Tokens[1]))
	}
	if b.Tokens[1][1] != PadID || b.Tokens[1][2] != PadID {
		t.Error("short row not padded with PadID")
	}
	if b.Mask[1][0] != true || b.Mask[1][1] != false {
		t.Error("mask does not track true length")
	}

	// Padding never leaks into the per-example view.
	ids, slots, intent := b.Row(1)
	if len(ids) != 1 || len(slots) != 1 || intent != 1 {
		t.Errorf("Row(1) = %v %v %d, want unpadded example", ids, slots, intent)
	}
}

func TestMakeBatchesShuffleDeterministic(t *testing.T) {
	encoded := make([]Encoded, 10)
	for i := range encoded {
		encoded[i] = Encoded{Tokens: []int{i + 2}, Slots: []int{0}, Intent: 0}
	}
	a := MakeBatches(encoded, 3, rand.New(rand.NewSource(9)))
	b := MakeBatches(encoded, 3, rand.New(rand.NewSource(9)))
	for i := range a {
		for j := range a[i].Tokens {
			if a[i].Tokens[j][0] != b[i].Tokens[j][0] {
				t.Fatal("same seed produced different batch order")
			}
		}
	}
}
