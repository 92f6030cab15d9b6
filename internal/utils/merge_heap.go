package utils

// MergeCand is a pending merge of the adjacent symbols at Pos and next[Pos]. VerL and VerR
// snapshot the slot versions at push time so stale candidates can be dropped on pop.
type MergeCand struct {
	Rank       int // lower wins
	Pos        int // left index; lower wins on tie to enforce leftmost
	LeftToken  int
	RightToken int
	VerL       int
	VerR       int
}

// MergeQueue orders merge candidates by (Rank, Pos).
type MergeQueue interface {
	Push(c MergeCand)
	Pop() (MergeCand, bool)
	Len() int
	Reset()
}

// MergeHeap is a binary min-heap of MergeCand. Not safe for concurrent use; encoders keep one
// per scratch buffer.
type MergeHeap struct {
	items []MergeCand
}

var _ MergeQueue = (*MergeHeap)(nil)

// NewMergeHeap returns an empty heap with room for capacity candidates.
func NewMergeHeap(capacity int) *MergeHeap {
	if capacity < 0 {
		capacity = 0
	}
	return &MergeHeap{items: make([]MergeCand, 0, capacity)}
}

func (h *MergeHeap) Len() int {
	return len(h.items)
}

func (h *MergeHeap) less(a, b MergeCand) bool {
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.Pos < b.Pos
}

func (h *MergeHeap) Push(c MergeCand) {
	h.items = append(h.items, c)
	h.up(len(h.items) - 1)
}

func (h *MergeHeap) Pop() (MergeCand, bool) {
	if len(h.items) == 0 {
		return MergeCand{}, false
	}

	n := len(h.items) - 1
	h.items[0], h.items[n] = h.items[n], h.items[0]

	result := h.items[n]
	h.items = h.items[:n]

	if len(h.items) > 0 {
		h.down(0)
	}

	return result, true
}

func (h *MergeHeap) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(h.items[i], h.items[parent]) {
			break
		}
		h.items[parent], h.items[i] = h.items[i], h.items[parent]
		i = parent
	}
}

func (h *MergeHeap) down(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		right := left + 1
		smallest := i

		if left < n && h.less(h.items[left], h.items[smallest]) {
			smallest = left
		}
		if right < n && h.less(h.items[right], h.items[smallest]) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// Reset empties the heap and keeps its backing array.
func (h *MergeHeap) Reset() {
	h.items = h.items[:0]
}
