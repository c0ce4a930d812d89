package dataset

import "math/rand"

// Encoded is one example mapped to id space and truncated to the
// maximum sequence length.
type Encoded struct {
	Tokens []int
	Slots  []int
	Intent int
}

// Encode maps an example onto the frozen vocabularies. Out-of-vocab
// tokens map to UnkID; an unseen slot or intent label is a LabelError
// because the label sets are immutable after training starts.
func Encode(ex Example, vocab *Vocab, slots, intents *Index, maxLen int) (Encoded, error) {
	n := len(ex.Tokens)
	if maxLen > 0 && n > maxLen {
		n = maxLen
	}
	enc := Encoded{
		Tokens: make([]int, n),
		Slots:  make([]int, n),
	}
	for i := 0; i < n; i++ {
		enc.Tokens[i] = vocab.ID(ex.Tokens[i])
		id := slots.Get(ex.Slots[i])
		if id < 0 {
			return Encoded{}, &LabelError{Kind: "slot", Label: ex.Slots[i]}
		}
		enc.Slots[i] = id
	}
	id := intents.Get(ex.Intent)
	if id < 0 {
		return Encoded{}, &LabelError{Kind: "intent", Label: ex.Intent}
	}
	enc.Intent = id
	return enc, nil
}

// Batch is a fixed-width slice of encoded examples. Rows are padded
// with PadID up to the longest sequence in the batch; Mask is true
// where a position is real. Padded positions carry slot id 0 but the
// mask (via Lengths) keeps them out of every loss and decode.
type Batch struct {
	Tokens  [][]int
	Mask    [][]bool
	Slots   [][]int
	Intents []int
	Lengths []int
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int { return len(b.Tokens) }

// Row returns example i truncated to its true length.
func (b *Batch) Row(i int) ([]int, []int, int) {
	n := b.Lengths[i]
	return b.Tokens[i][:n], b.Slots[i][:n], b.Intents[i]
}

// MakeBatches groups encoded examples into batches of at most
// batchSize, shuffling first when rng is non-nil.
func MakeBatches(encoded []Encoded, batchSize int, rng *rand.Rand) []Batch {
	order := make([]int, len(encoded))
	for i := range order {
		order[i] = i
	}
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	var batches []Batch
	for start := 0; start < len(order); start += batchSize {
		end := min(start+batchSize, len(order))
		members := order[start:end]

		width := 0
		for _, idx := range members {
			width = max(width, len(encoded[idx].Tokens))
		}

		b := Batch{
			Tokens:  make([][]int, len(members)),
			Mask:    make([][]bool, len(members)),
			Slots:   make([][]int, len(members)),
			Intents: make([]int, len(members)),
			Lengths: make([]int, len(members)),
		}
		for i, idx := range members {
			ex := encoded[idx]
			n := len(ex.Tokens)
			b.Tokens[i] = make([]int, width) // PadID == 0
			b.Mask[i] = make([]bool, width)
			b.Slots[i] = make([]int, width)
			copy(b.Tokens[i], ex.Tokens)
			copy(b.Slots[i], ex.Slots)
			for t := 0; t < n; t++ {
				b.Mask[i][t] = true
			}
			b.Intents[i] = ex.Intent
			b.Lengths[i] = n
		}
		batches = append(batches, b)
	}
	return batches
}
