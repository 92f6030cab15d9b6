package trainer

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/bytebpe/internal/logging"
	"github.com/bytebpe/internal/metrics"
	"github.com/bytebpe/internal/pretokenize"
	"github.com/bytebpe/internal/vocab"
)

// Config tunes parallelism and buffering. The zero value is usable; DefaultConfig fills in
// machine-sized defaults.
type Config struct {
	// Workers bounds goroutines per parallel step; <= 0 means unbounded.
	Workers int
	// Shards is the number of frequency table shards.
	Shards int
	// MaxDocumentSize bounds the text buffered while reading a corpus. Longer documents are
	// cut into pieces; see pretokenize.NewDocumentScanner.
	MaxDocumentSize int
}

// DefaultConfig sizes the worker pool and table shards to the machine.
func DefaultConfig() Config {
	n := runtime.GOMAXPROCS(0)
	return Config{
		Workers:         n,
		Shards:          4 * n,
		MaxDocumentSize: pretokenize.DefaultMaxDocumentSize,
	}
}

// Result is the output of a training run. Vocab and Merges must not be modified.
type Result struct {
	Vocab  *vocab.Vocabulary
	Merges vocab.MergeList
}

// Trainer learns byte-level BPE merges. It holds no per-run state and is safe to reuse.
type Trainer struct {
	cfg Config
}

// New returns a trainer using cfg.
func New(cfg Config) *Trainer {
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}
	return &Trainer{cfg: cfg}
}

// Train reads corpus, pre-tokenizes it and merges pairs until the vocabulary holds
// targetVocabSize ids or no adjacent pair is left. Special tokens get ids right after the 256
// bytes and are never part of a merge. A target that the base vocabulary already meets returns
// without reading the corpus.
func (t *Trainer) Train(ctx context.Context, corpus io.Reader, specialTokens []string, targetVocabSize int) (*Result, error) {
	logger := logr.FromContextOrDiscard(ctx)

	v, _ := vocab.Build(specialTokens)
	if targetVocabSize <= v.Len() {
		logger.V(logging.DEFAULT).Info("Target vocab size already met by base vocab, no merges learned",
			"target", targetVocabSize, "base", v.Len())
		return &Result{Vocab: v}, nil
	}

	seg, err := pretokenize.New(specialTokens)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	table, err := t.CountCorpus(ctx, corpus, seg)
	if err != nil {
		return nil, err
	}
	logger.V(logging.DEFAULT).Info("Pre-tokenized corpus",
		"units", table.Total(), "distinctUnits", table.Len(), "elapsed", time.Since(start))

	merges, err := t.Learn(ctx, table, v, targetVocabSize)
	if err != nil {
		return nil, err
	}
	return &Result{Vocab: v, Merges: merges}, nil
}

// CountCorpus splits corpus into documents at special tokens, pre-tokenizes documents
// concurrently and returns the table of byte-level unit sequences.
func (t *Trainer) CountCorpus(ctx context.Context, corpus io.Reader, seg *pretokenize.Segmenter) (*FrequencyTable, error) {
	var (
		mu     sync.Mutex
		counts = make(map[string]int64)
	)

	g, gctx := errgroup.WithContext(ctx)
	if t.cfg.Workers > 0 {
		g.SetLimit(t.cfg.Workers)
	}

	sc := pretokenize.NewDocumentScanner(corpus, seg.SpecialTokens(), t.cfg.MaxDocumentSize)
	for sc.Scan() {
		if gctx.Err() != nil {
			break
		}
		doc := sc.Text()
		if doc == "" {
			continue
		}
		g.Go(func() error {
			local := CountWords(seg, doc)
			mu.Lock()
			for w, c := range local {
				counts[w] += c
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error while reading corpus: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table := NewFrequencyTable(t.cfg.Shards)
	var units int64
	for w, c := range counts {
		table.Add(ByteSequence(w), c)
		units += c
	}
	metrics.RecordUnitsCounted(units)
	return table, nil
}

// CountWords counts the pre-token units of text, special-token spans dropped.
func CountWords(seg *pretokenize.Segmenter, text string) map[string]int64 {
	out := make(map[string]int64)
	for w := range seg.TrainingWords(text) {
		out[w]++
	}
	return out
}

// ByteSequence explodes a unit into single-byte symbol ids. Byte b has id b in every
// vocabulary built by vocab.Build.
func ByteSequence(unit string) []int32 {
	seq := make([]int32, len(unit))
	for i := 0; i < len(unit); i++ {
		seq[i] = int32(unit[i])
	}
	return seq
}

// Learn runs merge iterations over table, appending one id to v per merge, until v holds
// targetVocabSize ids or no pair is left. table is consumed.
func (t *Trainer) Learn(ctx context.Context, table *FrequencyTable, v *vocab.Vocabulary, targetVocabSize int) (vocab.MergeList, error) {
	logger := logr.FromContextOrDiscard(ctx)
	symbol := func(id int32) []byte {
		s, _ := v.Symbol(int(id))
		return s
	}

	var merges vocab.MergeList
	for v.Len() < targetVocabSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterStart := time.Now()

		pairs, err := CountPairs(ctx, table, t.cfg.Workers)
		if err != nil {
			return nil, err
		}
		pair, count, ok := SelectPair(pairs, symbol)
		if !ok {
			logger.V(logging.DEFAULT).Info("No mergeable pairs left, stopping early",
				"vocabSize", v.Len(), "target", targetVocabSize)
			break
		}

		m := vocab.Merge{Left: symbol(pair.Left), Right: symbol(pair.Right)}
		merged := v.Add(m.Result())
		merges = append(merges, m)

		// symbols are identified by their bytes: a result that already has an id keeps it
		canonical, _ := v.Lookup(m.Result())
		if err := ApplyMerge(ctx, table, pair, int32(canonical), t.cfg.Workers); err != nil {
			return nil, err
		}

		metrics.RecordMerge(time.Since(iterStart))
		logger.V(logging.TRACE).Info("Learned merge",
			"id", merged, "left", string(m.Left), "right", string(m.Right), "count", count)
	}

	logger.V(logging.DEFAULT).Info("Training finished", "merges", len(merges), "vocabSize", v.Len())
	return merges, nil
}
