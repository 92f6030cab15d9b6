package vocab

import "fmt"

// NumByteSymbols is the size of the base alphabet: one symbol per byte value.
const NumByteSymbols = 256

// Vocabulary maps a dense id range [0, Len()) to byte sequences.
// Invariants:
//   - ids are gap-free from 0 upward
//   - symbols are never mutated once added; callers must treat returned slices as read-only
//   - Lookup returns the lowest id holding a given byte sequence
type Vocabulary struct {
	symbols [][]byte
	// first id for each distinct byte sequence
	index map[string]int
}

// Build returns the base vocabulary for training: ids 0..255 are the single bytes and
// the special tokens follow in the order given. A special token whose bytes are already
// present is skipped. The second return value is the next free id.
func Build(specialTokens []string) (*Vocabulary, int) {
	v := &Vocabulary{
		symbols: make([][]byte, 0, NumByteSymbols+len(specialTokens)),
		index:   make(map[string]int, NumByteSymbols+len(specialTokens)),
	}
	for b := 0; b < NumByteSymbols; b++ {
		v.Add([]byte{byte(b)})
	}

	for _, tok := range specialTokens {
		if _, exists := v.index[tok]; exists {
			continue
		}
		v.Add([]byte(tok))
	}

	return v, v.Len()
}

// FromSymbols wraps an id-ordered symbol list. Every symbol must be non-empty.
func FromSymbols(symbols [][]byte) (*Vocabulary, error) {
	v := &Vocabulary{
		symbols: make([][]byte, 0, len(symbols)),
		index:   make(map[string]int, len(symbols)),
	}
	for id, sym := range symbols {
		if len(sym) == 0 {
			return nil, fmt.Errorf("empty byte sequence for token id %d", id)
		}
		v.Add(sym)
	}
	return v, nil
}

// Add appends a copy of sym under the next id and returns that id.
// Duplicated byte sequences get their own id; Lookup keeps reporting the first one.
func (v *Vocabulary) Add(sym []byte) int {
	id := len(v.symbols)
	bcopy := make([]byte, len(sym))
	copy(bcopy, sym)
	v.symbols = append(v.symbols, bcopy)

	if _, exists := v.index[string(bcopy)]; !exists {
		v.index[string(bcopy)] = id
	}
	return id
}

// Len is the number of ids in the vocabulary.
func (v *Vocabulary) Len() int {
	return len(v.symbols)
}

// Symbol returns the byte sequence for id.
func (v *Vocabulary) Symbol(id int) ([]byte, bool) {
	if id < 0 || id >= len(v.symbols) {
		return nil, false
	}
	return v.symbols[id], true
}

// Lookup returns the lowest id whose symbol equals sym.
func (v *Vocabulary) Lookup(sym []byte) (int, bool) {
	id, ok := v.index[string(sym)]
	return id, ok
}

// Symbols exposes the id-ordered symbol table. The result aliases internal memory.
func (v *Vocabulary) Symbols() [][]byte {
	return v.symbols
}
