package tokenizer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/go-logr/logr"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/bytebpe/internal/logging"
	"github.com/bytebpe/internal/metrics"
	"github.com/bytebpe/internal/pretokenize"
	"github.com/bytebpe/internal/vocab"
)

// ErrUnknownSpecialToken is returned when a special token has no id in the vocabulary.
var ErrUnknownSpecialToken = errors.New("special token has no vocab id")

// DefaultCacheSize is the number of distinct pre-token units whose encoding is memoized.
const DefaultCacheSize = 1 << 14

// Options configures a Tokenizer beyond its model data.
type Options struct {
	// CacheSize bounds the unit encode cache; <= 0 disables it.
	CacheSize int
	Logger    logr.Logger
}

// DefaultOptions enables the encode cache and discards logs.
func DefaultOptions() Options {
	return Options{CacheSize: DefaultCacheSize, Logger: logr.Discard()}
}

// mergeRule is a merge expressed over canonical ids: the lowest id holding each byte string.
type mergeRule struct {
	left, right, result int
}

// Tokenizer holds immutable model data derived from a vocabulary and merge list and is safe
// for concurrent use.
// Invariants we maintain:
//   - internal encoding works on canonical ids, so two ids holding the same bytes compare equal
//   - for every byte b in [0..255], byteToToken[b] is the canonical id of that byte
//   - outputID[c] is the id emitted for canonical id c: the highest id holding those bytes
//   - when ranked is set, pairLookup maps each merge's canonical pair to rank<<32 | result
type Tokenizer struct {
	vocab  *vocab.Vocabulary
	merges vocab.MergeList
	seg    *pretokenize.Segmenter

	byteToToken [256]int
	outputID    []int
	specialIDs  map[string]int
	ordered     []mergeRule

	ranked      bool
	pairLookup  *PairLookup
	scratchPool sync.Pool

	cache  *lru.Cache[string, []int]
	logger logr.Logger
}

// New builds a tokenizer with default options. See NewWithOptions.
func New(v *vocab.Vocabulary, merges vocab.MergeList, specialTokens []string) (*Tokenizer, error) {
	return NewWithOptions(v, merges, specialTokens, DefaultOptions())
}

// NewWithOptions builds a tokenizer. Construction fails if some byte value has no id, if a
// merge's operands or concatenation have no id, or if a special token has no id. v and merges
// must not be modified afterwards.
func NewWithOptions(v *vocab.Vocabulary, merges vocab.MergeList, specialTokens []string, opts Options) (*Tokenizer, error) {
	errs := vocab.Validate(v, merges)

	seg, err := pretokenize.New(specialTokens)
	if err != nil {
		return nil, err
	}
	specialIDs := make(map[string]int, len(seg.SpecialTokens()))
	for _, tok := range seg.SpecialTokens() {
		if _, ok := v.Lookup([]byte(tok)); !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrUnknownSpecialToken, tok))
		}
	}
	if errs != nil {
		return nil, errs
	}

	t := &Tokenizer{
		vocab:      v,
		merges:     merges,
		seg:        seg,
		outputID:   make([]int, v.Len()),
		specialIDs: specialIDs,
		ordered:    make([]mergeRule, len(merges)),
		logger:     opts.Logger,
	}

	for id, sym := range v.Symbols() {
		c := t.canonical(sym)
		t.outputID[c] = id
	}
	for b := 0; b < vocab.NumByteSymbols; b++ {
		t.byteToToken[b] = t.canonical([]byte{byte(b)})
	}
	for _, tok := range seg.SpecialTokens() {
		t.specialIDs[tok] = t.outputID[t.canonical([]byte(tok))]
	}
	for rank, m := range merges {
		t.ordered[rank] = mergeRule{
			left:   t.canonical(m.Left),
			right:  t.canonical(m.Right),
			result: t.canonical(m.Result()),
		}
	}

	if t.ranked = rankConsistent(t.ordered, t.byteToToken); t.ranked {
		pairInfo := make(map[uint64]uint64, len(t.ordered))
		for rank, r := range t.ordered {
			pairInfo[packPair(r.left, r.right)] = uint64(rank)<<32 | uint64(r.result)
		}
		t.pairLookup = NewPairLookup(pairInfo, v.Len())
	}

	if opts.CacheSize > 0 {
		t.cache, err = lru.New[string, []int](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("error while creating encode cache: %w", err)
		}
	}

	t.logger.V(logging.VERBOSE).Info("Tokenizer ready",
		"vocabSize", v.Len(), "merges", len(merges), "specialTokens", len(specialIDs), "ranked", t.ranked)
	return t, nil
}

// LoadTokenizerFromFiles builds a tokenizer from a vocab.json and merges.txt pair written by
// vocab.Save (or any GPT-2 style pair). specialTokens must match the ones used in training.
func LoadTokenizerFromFiles(vocabPath, mergesPath string, specialTokens []string, opts Options) (*Tokenizer, error) {
	v, merges, err := vocab.LoadFiles(vocabPath, mergesPath)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(v, merges, specialTokens, opts)
}

func (t *Tokenizer) canonical(sym []byte) int {
	id, ok := t.vocab.Lookup(sym)
	if !ok {
		panic(fmt.Sprintf("no vocab id for %q", sym))
	}
	return id
}

// rankConsistent reports whether every merge only consumes single bytes or results of earlier
// merges, and no result is produced twice. Under these conditions no merge can enable a merge
// of lower rank, so applying the lowest-ranked available pair first gives the same output as
// replaying the list in order.
func rankConsistent(rules []mergeRule, byteToToken [256]int) bool {
	available := make(map[int]bool, len(byteToToken)+len(rules))
	for _, id := range byteToToken {
		available[id] = true
	}
	for _, r := range rules {
		if !available[r.left] || !available[r.right] {
			return false
		}
		if available[r.result] {
			return false
		}
		available[r.result] = true
	}
	return true
}

// VocabSize is the number of ids.
func (t *Tokenizer) VocabSize() int { return t.vocab.Len() }

// Vocab returns the vocabulary. It must not be modified.
func (t *Tokenizer) Vocab() *vocab.Vocabulary { return t.vocab }

// Merges returns the merge list in priority order. It must not be modified.
func (t *Tokenizer) Merges() vocab.MergeList { return t.merges }

// SpecialTokens returns the special tokens, longest first.
func (t *Tokenizer) SpecialTokens() []string { return t.seg.SpecialTokens() }

// SpecialTokenID returns the id a special token encodes to.
func (t *Tokenizer) SpecialTokenID(tok string) (int, bool) {
	id, ok := t.specialIDs[tok]
	return id, ok
}

// Encode converts text to ids. Special tokens become their single id; every other pre-token
// unit is split into bytes and the merges are replayed on it in training order.
func (t *Tokenizer) Encode(text string) []int {
	var out []int
	for u := range t.seg.Units(text) {
		out = t.appendUnit(out, u)
	}
	metrics.RecordTokensEncoded(len(out))
	return out
}

// EncodeIterable lazily encodes a sequence of chunks, each chunk independently. Ids are
// produced one pre-token unit at a time, so at most one unit's ids are buffered. The result is
// single use if chunks is.
func (t *Tokenizer) EncodeIterable(chunks iter.Seq[string]) iter.Seq[int] {
	return func(yield func(int) bool) {
		var buf []int
		for chunk := range chunks {
			n := 0
			for u := range t.seg.Units(chunk) {
				buf = t.appendUnit(buf[:0], u)
				n += len(buf)
				for _, id := range buf {
					if !yield(id) {
						metrics.RecordTokensEncoded(n)
						return
					}
				}
			}
			metrics.RecordTokensEncoded(n)
		}
	}
}

// EncodeBatch encodes chunks in parallel; out[i] is Encode(chunks[i]). workers <= 0 means one
// goroutine per chunk.
func (t *Tokenizer) EncodeBatch(ctx context.Context, chunks []string, workers int) ([][]int, error) {
	out := make([][]int, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = t.Encode(chunk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tokenizer) appendUnit(out []int, u pretokenize.Unit) []int {
	if u.Special {
		return append(out, t.specialIDs[u.Text])
	}
	return append(out, t.encodeWord(u.Text)...)
}

// encodeWord returns the ids for one ordinary unit. The result may be shared with the cache
// and must not be modified.
func (t *Tokenizer) encodeWord(word string) []int {
	if t.cache != nil {
		if ids, ok := t.cache.Get(word); ok {
			metrics.RecordEncodeCache(true)
			return ids
		}
		metrics.RecordEncodeCache(false)
	}

	var ids []int
	if t.ranked {
		ids = t.encodeRanked(word)
	} else {
		ids = t.encodeOrdered(word)
	}
	for i, c := range ids {
		ids[i] = t.outputID[c]
	}

	if t.cache != nil {
		t.cache.Add(word, ids)
	}
	return ids
}
