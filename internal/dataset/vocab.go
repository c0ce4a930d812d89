// Package dataset loads the parallel token/slot/intent corpus files,
// builds the vocabularies and assembles padded batches.
package dataset

// Reserved vocabulary entries. Padding occupies id 0 so zeroed tensors
// are padding by construction; unknown tokens map to id 1.
const (
	PadToken = "<pad>"
	UnkToken = "<unk>"
	PadID    = 0
	UnkID    = 1
)

// Index maps between strings and integer ids. Immutable once built.
type Index struct {
	ToID  map[string]int `json:"to_id"`
	ToStr []string       `json:"to_str"`
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{ToID: make(map[string]int)}
}

// Add inserts s if not already present and returns its id.
func (x *Index) Add(s string) int {
	if id, ok := x.ToID[s]; ok {
		return id
	}
	id := len(x.ToStr)
	x.ToID[s] = id
	x.ToStr = append(x.ToStr, s)
	return id
}

// Get returns the id for s, or -1 if not found.
func (x *Index) Get(s string) int {
	if id, ok := x.ToID[s]; ok {
		return id
	}
	return -1
}

// Size returns the number of entries.
func (x *Index) Size() int {
	return len(x.ToStr)
}

// Vocab is a token index with reserved padding/unknown ids and a
// minimum-frequency cutoff applied at build time.
type Vocab struct {
	Index   `json:"index"`
	MinFreq int `json:"min_freq"`
}

// BuildVocab scans the training examples and assigns ids to every
// token occurring at least minFreq times, in corpus order so the
// layout is reproducible. Rarer tokens fall back to UnkID.
func BuildVocab(examples []Example, minFreq int) *Vocab {
	if minFreq < 1 {
		minFreq = 1
	}
	counts := make(map[string]int)
	for _, ex := range examples {
		for _, tok := range ex.Tokens {
			counts[tok]++
		}
	}

	v := &Vocab{Index: *NewIndex(), MinFreq: minFreq}
	v.Add(PadToken)
	v.Add(UnkToken)
	for _, ex := range examples {
		for _, tok := range ex.Tokens {
			if counts[tok] >= minFreq {
				v.Add(tok)
			}
		}
	}
	return v
}

// ID maps a token to its id, falling back to UnkID for tokens outside
// the vocabulary. Never fails: unseen tokens are not errors.
func (v *Vocab) ID(token string) int {
	if id, ok := v.ToID[token]; ok {
		return id
	}
	return UnkID
}

// BuildSlotIndex collects the slot tag set from the training examples.
func BuildSlotIndex(examples []Example) *Index {
	x := NewIndex()
	for _, ex := range examples {
		for _, tag := range ex.Slots {
			x.Add(tag)
		}
	}
	return x
}

// BuildIntentIndex collects the intent label set.
func BuildIntentIndex(examples []Example) *Index {
	x := NewIndex()
	for _, ex := range examples {
		x.Add(ex.Intent)
	}
	return x
}
