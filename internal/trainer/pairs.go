package trainer

import (
	"bytes"
	"context"

	"golang.org/x/sync/errgroup"
)

// Pair is two adjacent symbol ids, left then right.
type Pair struct {
	Left  int32
	Right int32
}

// PairFrequency maps an adjacent pair to the sum, over all sequences, of the sequence's count
// times the number of times the pair occurs in it.
type PairFrequency map[Pair]int64

// CountPairs builds the PairFrequency of table. Shards are counted concurrently and the partial
// maps are summed, so the result does not depend on scheduling.
func CountPairs(ctx context.Context, table *FrequencyTable, workers int) (PairFrequency, error) {
	partials := make([]PairFrequency, len(table.shards))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, sh := range table.shards {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			local := make(PairFrequency)
			sh.mu.Lock()
			for _, e := range sh.entries {
				for j := 0; j+1 < len(e.seq); j++ {
					local[Pair{e.seq[j], e.seq[j+1]}] += e.count
				}
			}
			sh.mu.Unlock()
			partials[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// reduce into the largest partial to save a copy
	best := 0
	for i := range partials {
		if len(partials[i]) > len(partials[best]) {
			best = i
		}
	}
	out := partials[best]
	if out == nil {
		out = make(PairFrequency)
	}
	for i, p := range partials {
		if i == best {
			continue
		}
		for pair, c := range p {
			out[pair] += c
		}
	}
	return out, nil
}

// SymbolLookup resolves a symbol id to its bytes.
type SymbolLookup func(id int32) []byte

// ComparePairs orders pairs by the raw bytes of the left symbol, then of the right symbol.
func ComparePairs(a, b Pair, symbol SymbolLookup) int {
	if c := bytes.Compare(symbol(a.Left), symbol(b.Left)); c != 0 {
		return c
	}
	return bytes.Compare(symbol(a.Right), symbol(b.Right))
}

// SelectPair returns the most frequent pair. Among pairs sharing the top count the greatest
// under ComparePairs wins. ok is false when pairs is empty.
func SelectPair(pairs PairFrequency, symbol SymbolLookup) (best Pair, count int64, ok bool) {
	for p, c := range pairs {
		switch {
		case !ok || c > count:
			best, count, ok = p, c, true
		case c == count && ComparePairs(p, best, symbol) > 0:
			best = p
		}
	}
	return best, count, ok
}
