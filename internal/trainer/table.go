package trainer

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// symbol ids are packed little-endian, 4 bytes each, to form comparable map keys
const symbolWidth = 4

func packSequence(seq []int32) string {
	buf := make([]byte, len(seq)*symbolWidth)
	for i, id := range seq {
		binary.LittleEndian.PutUint32(buf[i*symbolWidth:], uint32(id))
	}
	return string(buf)
}

type tableEntry struct {
	seq   []int32
	count int64
}

type tableShard struct {
	mu      sync.Mutex
	entries map[string]*tableEntry
}

// FrequencyTable counts how often each exact segmentation (a sequence of symbol ids) occurs.
// Sequences are compared structurally; adding a sequence that is already present sums the
// counts. The table is split into shards by key hash so concurrent writers rarely contend.
type FrequencyTable struct {
	shards []*tableShard
}

// NewFrequencyTable returns an empty table with n shards (at least one).
func NewFrequencyTable(n int) *FrequencyTable {
	if n < 1 {
		n = 1
	}
	t := &FrequencyTable{shards: make([]*tableShard, n)}
	for i := range t.shards {
		t.shards[i] = &tableShard{entries: make(map[string]*tableEntry)}
	}
	return t
}

func (t *FrequencyTable) shardFor(key string) *tableShard {
	return t.shards[xxhash.Sum64String(key)%uint64(len(t.shards))]
}

// Add adds count to seq's entry. The table keeps its own copy of seq.
func (t *FrequencyTable) Add(seq []int32, count int64) {
	if count == 0 {
		return
	}
	key := packSequence(seq)
	sh := t.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[key]; ok {
		e.count += count
		return
	}
	own := make([]int32, len(seq))
	copy(own, seq)
	sh.entries[key] = &tableEntry{seq: own, count: count}
}

// Count returns the count recorded for seq.
func (t *FrequencyTable) Count(seq []int32) int64 {
	key := packSequence(seq)
	sh := t.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[key]; ok {
		return e.count
	}
	return 0
}

// Len is the number of distinct sequences.
func (t *FrequencyTable) Len() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Total is the sum of all counts, i.e. the number of pre-token units the table was built from.
func (t *FrequencyTable) Total() int64 {
	var total int64
	for _, sh := range t.shards {
		sh.mu.Lock()
		for _, e := range sh.entries {
			total += e.count
		}
		sh.mu.Unlock()
	}
	return total
}

// Range calls fn for every entry until fn returns false. fn must not modify the table or seq.
func (t *FrequencyTable) Range(fn func(seq []int32, count int64) bool) {
	for _, sh := range t.shards {
		sh.mu.Lock()
		for _, e := range sh.entries {
			if !fn(e.seq, e.count) {
				sh.mu.Unlock()
				return
			}
		}
		sh.mu.Unlock()
	}
}

// remove deletes the entry stored under key in sh. Caller holds sh.mu.
func (sh *tableShard) remove(key string) {
	delete(sh.entries, key)
}
