package trainer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytebpe/internal/pretokenize"
	"github.com/bytebpe/internal/vocab"
)

const tinyCorpus = `low low low low low lower lower widest widest widest newest newest newest newest newest newest
the quick brown fox jumps over the lazy dog<|endoftext|>the dog barks, the fox runs.
It's 2024 and they've counted 1234 foxes!<|endoftext|>`

func testContext(t *testing.T) context.Context {
	return logr.NewContext(context.Background(), testr.New(t))
}

func merged(merges vocab.MergeList) []string {
	out := make([]string, len(merges))
	for i, m := range merges {
		out[i] = string(m.Left) + "|" + string(m.Right)
	}
	return out
}

func TestTrainKnownAnswer(t *testing.T) {
	tr := New(DefaultConfig())
	res, err := tr.Train(testContext(t), strings.NewReader("aaabdaaabac"), nil, 256+3)
	require.NoError(t, err)

	// (aa,a) beats (a,b) on the tie at count 2 because "aa" > "a" bytewise
	want := []string{"a|a", "aa|a", "aaa|b"}
	if diff := cmp.Diff(want, merged(res.Merges)); diff != "" {
		t.Fatalf("merges mismatch (-want +got):\n%s", diff)
	}
	for i, m := range res.Merges {
		sym, ok := res.Vocab.Symbol(256 + i)
		require.True(t, ok)
		assert.Equal(t, m.Result(), sym)
	}
}

func TestTrainVocabGrowthInvariant(t *testing.T) {
	specials := []string{"<|endoftext|>", "<|pad|>", "<|endoftext|>", "x"}
	for _, target := range []int{0, 256, 258, 260, 300, 400} {
		res, err := New(DefaultConfig()).Train(testContext(t), strings.NewReader(tinyCorpus), specials, target)
		require.NoError(t, err)

		// "x" is already a byte and the repeat is dropped
		unique := 2
		assert.Equal(t, 256+unique+len(res.Merges), res.Vocab.Len(), "target %d", target)
		if target <= 256+unique {
			assert.Empty(t, res.Merges, "target %d", target)
		} else {
			assert.LessOrEqual(t, res.Vocab.Len(), target)
		}
	}
}

func TestTrainDeterministicAcrossParallelism(t *testing.T) {
	specials := []string{"<|endoftext|>"}
	serial, err := New(Config{Workers: 1, Shards: 1}).Train(testContext(t), strings.NewReader(tinyCorpus), specials, 330)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		par, err := New(Config{Workers: 8, Shards: 13}).Train(testContext(t), strings.NewReader(tinyCorpus), specials, 330)
		require.NoError(t, err)

		if diff := cmp.Diff(serial.Merges, par.Merges); diff != "" {
			t.Fatalf("run %d merges differ (-serial +parallel):\n%s", i, diff)
		}
		if diff := cmp.Diff(serial.Vocab.Symbols(), par.Vocab.Symbols()); diff != "" {
			t.Fatalf("run %d vocab differs (-serial +parallel):\n%s", i, diff)
		}
	}
}

func TestTrainStopsWhenPairsRunOut(t *testing.T) {
	res, err := New(DefaultConfig()).Train(testContext(t), strings.NewReader("ab ab"), nil, 10_000)
	require.NoError(t, err)

	// units are "ab" and " ab": (a,b) then ( ,ab)
	assert.Equal(t, []string{"a|b", " |ab"}, merged(res.Merges))
	assert.Equal(t, 258, res.Vocab.Len())
}

func TestTrainSpecialTokensNeverMerged(t *testing.T) {
	corpus := strings.Repeat("<|end|>", 50) + "ab"
	res, err := New(DefaultConfig()).Train(testContext(t), strings.NewReader(corpus), []string{"<|end|>"}, 300)
	require.NoError(t, err)

	sym, _ := res.Vocab.Symbol(256)
	assert.Equal(t, "<|end|>", string(sym))
	assert.Equal(t, []string{"a|b"}, merged(res.Merges))
	assert.Equal(t, 258, res.Vocab.Len())
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	_, err := New(DefaultConfig()).Train(ctx, strings.NewReader(tinyCorpus), nil, 400)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainCorpusLargerThanMaxDocumentSize(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 3500; i++ {
		fmt.Fprintf(&sb, "Line %d: the quick brown fox jumps over the lazy dog\n", i)
		if i%7 == 0 {
			sb.WriteString("  indented, with trailing space \n")
		}
	}
	corpus := sb.String()
	require.Greater(t, len(corpus), 3*64*1024)

	// the corpus has no special tokens, so it is one document
	bounded := Config{Workers: 4, Shards: 7, MaxDocumentSize: 64 * 1024}
	got, err := New(bounded).Train(testContext(t), strings.NewReader(corpus), []string{"<|endoftext|>"}, 300)
	require.NoError(t, err)

	want, err := New(DefaultConfig()).Train(testContext(t), strings.NewReader(corpus), []string{"<|endoftext|>"}, 300)
	require.NoError(t, err)

	require.NotEmpty(t, want.Merges)
	if diff := cmp.Diff(want.Merges, got.Merges); diff != "" {
		t.Fatalf("merges differ (-unbounded +bounded):\n%s", diff)
	}
}

func TestLearnConservesUnitCount(t *testing.T) {
	seg, err := pretokenize.New([]string{"<|endoftext|>"})
	require.NoError(t, err)

	tr := New(Config{Workers: 4, Shards: 7})
	table, err := tr.CountCorpus(testContext(t), strings.NewReader(tinyCorpus), seg)
	require.NoError(t, err)

	total := table.Total()
	require.Positive(t, total)

	v, _ := vocab.Build([]string{"<|endoftext|>"})
	symbol := func(id int32) []byte { s, _ := v.Symbol(int(id)); return s }
	for i := 0; i < 40; i++ {
		pairs, err := CountPairs(context.Background(), table, 4)
		require.NoError(t, err)
		pair, _, ok := SelectPair(pairs, symbol)
		if !ok {
			break
		}
		id := v.Add(vocab.Merge{Left: symbol(pair.Left), Right: symbol(pair.Right)}.Result())
		require.NoError(t, ApplyMerge(context.Background(), table, pair, int32(id), 4))
		require.Equal(t, total, table.Total(), "after merge %d", i)
	}
}

func TestCountCorpusDropsSpecialTokens(t *testing.T) {
	seg, err := pretokenize.New([]string{"<|end|>"})
	require.NoError(t, err)

	table, err := New(DefaultConfig()).CountCorpus(context.Background(), strings.NewReader("hi<|end|>hi<|end|> hi"), seg)
	require.NoError(t, err)

	assert.Equal(t, int64(3), table.Total())
	assert.Equal(t, int64(2), table.Count(ByteSequence("hi")))
	assert.Equal(t, int64(1), table.Count(ByteSequence(" hi")))
	assert.Equal(t, int64(0), table.Count(ByteSequence("<|end|>")))
}
