package trainer

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type rewrite struct {
	oldKey string
	newSeq []int32
	count  int64
}

// mergeSequence rewrites every non-overlapping occurrence of pair in seq into merged, scanning
// left to right. It reports false, and returns nil, when seq has no occurrence.
func mergeSequence(seq []int32, pair Pair, merged int32) ([]int32, bool) {
	var out []int32
	for i := 0; i < len(seq); {
		if i+1 < len(seq) && seq[i] == pair.Left && seq[i+1] == pair.Right {
			if out == nil {
				out = make([]int32, i, len(seq)-1)
				copy(out, seq[:i])
			}
			out = append(out, merged)
			i += 2
			continue
		}
		if out != nil {
			out = append(out, seq[i])
		}
		i++
	}
	return out, out != nil
}

// ApplyMerge replaces pair with merged in every sequence of table. Sequences without the pair
// keep their key and count. A rewritten sequence moves its count to the new key, summing with
// any other sequence that collapsed to the same key.
//
// All rewrites are collected from every shard before the table is touched; the fold then runs
// per source shard with the destination shard's lock held.
func ApplyMerge(ctx context.Context, table *FrequencyTable, pair Pair, merged int32, workers int) error {
	changes := make([][]rewrite, len(table.shards))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, sh := range table.shards {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sh.mu.Lock()
			defer sh.mu.Unlock()
			for key, e := range sh.entries {
				if newSeq, ok := mergeSequence(e.seq, pair, merged); ok {
					changes[i] = append(changes[i], rewrite{oldKey: key, newSeq: newSeq, count: e.count})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Old keys never contain merged and new keys always do, so removals and insertions
	// cannot touch the same entry. The fold is not cancellable: a half-applied merge would
	// break count conservation.
	var fold errgroup.Group
	if workers > 0 {
		fold.SetLimit(workers)
	}
	for i, sh := range table.shards {
		if len(changes[i]) == 0 {
			continue
		}
		fold.Go(func() error {
			sh.mu.Lock()
			for _, c := range changes[i] {
				sh.remove(c.oldKey)
			}
			sh.mu.Unlock()

			for _, c := range changes[i] {
				table.Add(c.newSeq, c.count)
			}
			return nil
		})
	}
	return fold.Wait()
}
