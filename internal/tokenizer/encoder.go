package tokenizer

import (
	"github.com/bytebpe/internal/utils"
)

// encodeRanked merges one unit by repeatedly taking the lowest-ranked adjacent pair, leftmost
// first. Only valid when the merge list is rank-consistent. Returns canonical ids.
func (t *Tokenizer) encodeRanked(word string) []int {
	n := len(word)
	if n == 0 {
		return nil
	}

	scratch := t.acquireScratch(n)
	defer t.releaseScratch(scratch)

	tokens := scratch.tokens
	for i := 0; i < n; i++ {
		tokens[i] = t.byteToToken[word[i]]
	}
	if n == 1 {
		return []int{tokens[0]}
	}

	// doubly linked-list
	prev := scratch.prev
	next := scratch.next
	for i := 0; i < n; i++ {
		prev[i] = i - 1
		next[i] = i + 1
	}

	// edge elements
	prev[0] = -1
	next[n-1] = -1

	liveVersion := scratch.live
	for i := 0; i < n; i++ {
		liveVersion[i] = 0
	}

	h := scratch.heap

	pushIfMergeable := func(i int) {
		if i == -1 {
			return
		}
		j := next[i]
		if j == -1 {
			return
		}

		a := tokens[i]
		b := tokens[j]

		info, ok := t.pairLookup.Lookup(a, b)
		if ok {
			h.Push(utils.MergeCand{
				Rank:       int(info >> 32),
				Pos:        i,
				LeftToken:  a,
				RightToken: b,
				VerL:       liveVersion[i],
				VerR:       liveVersion[j],
			})
		}
	}

	for i := 0; i != -1 && next[i] != -1; i = next[i] {
		pushIfMergeable(i)
	}

	for {
		c, ok := h.Pop()
		if !ok {
			break
		}
		i := c.Pos

		j := next[i]
		if j == -1 {
			continue
		}

		// a merge touching either slot since the push makes the candidate stale
		if liveVersion[i] != c.VerL || liveVersion[j] != c.VerR {
			continue
		}

		a := tokens[i]
		b := tokens[j]
		if a != c.LeftToken || b != c.RightToken {
			continue
		}

		info, _ := t.pairLookup.Lookup(a, b)
		tokens[i] = int(info & 0xFFFFFFFF)

		nj := next[j]
		next[i] = nj
		if nj != -1 {
			prev[nj] = i
		}

		prev[j], next[j] = -1, -1

		liveVersion[i]++
		liveVersion[j]++

		if pi := prev[i]; pi != -1 {
			pushIfMergeable(pi)
		}

		pushIfMergeable(i)
	}

	// leftmost index never dies; we always merge into the left slot
	out := make([]int, 0, n)
	for i := 0; i != -1; i = next[i] {
		out = append(out, tokens[i])
	}

	return out
}

// encodeOrdered replays every merge once, in list order, over one unit. Each pass replaces
// non-overlapping occurrences left to right. Returns canonical ids.
func (t *Tokenizer) encodeOrdered(word string) []int {
	seq := make([]int, len(word))
	for i := 0; i < len(word); i++ {
		seq[i] = t.byteToToken[word[i]]
	}

	buf := make([]int, 0, len(seq))
	for _, m := range t.ordered {
		if len(seq) < 2 {
			break
		}

		buf = buf[:0]
		changed := false
		for j := 0; j < len(seq); {
			if j+1 < len(seq) && seq[j] == m.left && seq[j+1] == m.right {
				buf = append(buf, m.result)
				j += 2
				changed = true
				continue
			}
			buf = append(buf, seq[j])
			j++
		}
		if changed {
			seq, buf = buf, seq
		}
	}
	return seq
}

type encodeScratch struct {
	tokens []int
	prev   []int
	next   []int
	live   []int
	heap   *utils.MergeHeap
}

func (t *Tokenizer) acquireScratch(n int) *encodeScratch {
	v := t.scratchPool.Get()
	var sc *encodeScratch
	if v == nil {
		sc = &encodeScratch{heap: utils.NewMergeHeap(n)}
	} else {
		sc = v.(*encodeScratch)
	}
	sc.prepare(n)
	return sc
}

func (t *Tokenizer) releaseScratch(sc *encodeScratch) {
	t.scratchPool.Put(sc)
}

func (sc *encodeScratch) prepare(n int) {
	sc.tokens = ensureIntCapacity(sc.tokens, n)
	sc.prev = ensureIntCapacity(sc.prev, n)
	sc.next = ensureIntCapacity(sc.next, n)
	sc.live = ensureIntCapacity(sc.live, n)
	sc.heap.Reset()
}

func ensureIntCapacity(buf []int, n int) []int {
	if cap(buf) < n {
		return make([]int, n)
	}
	return buf[:n]
}
