package tokenizer

// maxFastLookupSize caps the dense table at maxFastLookupSize^2 entries (8 MiB).
const maxFastLookupSize = 1024

// PairLookup provides fast lookup of pair info (rank and token) using a hybrid approach:
// - 2D array for pairs where both tokens are < fastLookupSize (O(1) lookup)
// - Map fallback for larger pairs
type PairLookup struct {
	fastLookup     [][]uint64
	fastLookupSize int
	fallback       map[uint64]uint64
}

func packPair(a, b int) uint64 {
	return uint64(uint32(a))<<32 | uint64(uint32(b))
}

// NewPairLookup indexes pairInfo, keyed by packPair(a, b) with values rank<<32 | tokenID.
func NewPairLookup(pairInfo map[uint64]uint64, vocabSize int) *PairLookup {
	fastLookupSize := min(vocabSize, maxFastLookupSize)

	fastLookup := make([][]uint64, fastLookupSize)
	for i := range fastLookup {
		fastLookup[i] = make([]uint64, fastLookupSize)
		for j := range fastLookup[i] {
			fastLookup[i][j] = ^uint64(0)
		}
	}

	fallback := make(map[uint64]uint64)
	for key, value := range pairInfo {
		a := int(key >> 32)
		b := int(key & 0xFFFFFFFF)

		if a < fastLookupSize && b < fastLookupSize {
			fastLookup[a][b] = value
		} else {
			fallback[key] = value
		}
	}

	return &PairLookup{
		fastLookup:     fastLookup,
		fastLookupSize: fastLookupSize,
		fallback:       fallback,
	}
}

// Lookup returns the pair info (rank << 32 | tokenID) and whether it was found
func (pl *PairLookup) Lookup(a, b int) (uint64, bool) {
	if a >= 0 && a < pl.fastLookupSize && b >= 0 && b < pl.fastLookupSize {
		value := pl.fastLookup[a][b]
		if value+1 != 0 {
			return value, true
		}
		return 0, false
	}

	value, ok := pl.fallback[packPair(a, b)]
	return value, ok
}
