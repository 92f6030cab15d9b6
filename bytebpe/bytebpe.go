// Package bytebpe trains byte-level BPE vocabularies and encodes text with them.
//
// Ids 0..255 are the single bytes, special tokens follow, then one id per learned merge. A
// trained vocabulary is stored as a GPT-2 style vocab.json and merges.txt pair.
package bytebpe

import (
	"context"
	"io"
	"iter"
	"path/filepath"

	"github.com/bytebpe/internal/tokenizer"
	"github.com/bytebpe/internal/trainer"
	"github.com/bytebpe/internal/vocab"
)

type (
	Vocabulary  = vocab.Vocabulary
	Merge       = vocab.Merge
	MergeList   = vocab.MergeList
	Tokenizer   = tokenizer.Tokenizer
	Options     = tokenizer.Options
	TrainConfig = trainer.Config
)

// Encoder interface
type Encoder interface {
	/*
		Encode converts text to ids. Special tokens always encode to their single id.
	*/
	Encode(text string) []int

	/*
		EncodeIterable encodes chunks lazily, one chunk at a time. The returned sequence can be
		ranged over once if chunks can.
	*/
	EncodeIterable(chunks iter.Seq[string]) iter.Seq[int]
}

// Decoder interface, decoding never fails
type Decoder interface {
	/*
		Decode converts ids back to text, substituting U+FFFD for unknown ids and malformed UTF-8.
	*/
	Decode(ids []int) string
}

var (
	_ Encoder = (*Tokenizer)(nil)
	_ Decoder = (*Tokenizer)(nil)
)

// DefaultTrainConfig sizes training parallelism to the machine.
func DefaultTrainConfig() TrainConfig {
	return trainer.DefaultConfig()
}

// Train learns merges from corpus until the vocabulary has vocabSize ids or no pair is left.
// The logger, if any, is taken from ctx.
func Train(ctx context.Context, corpus io.Reader, specialTokens []string, vocabSize int) (*Vocabulary, MergeList, error) {
	return TrainWithConfig(ctx, DefaultTrainConfig(), corpus, specialTokens, vocabSize)
}

// TrainWithConfig is Train with explicit parallelism and buffering settings.
func TrainWithConfig(ctx context.Context, cfg TrainConfig, corpus io.Reader, specialTokens []string, vocabSize int) (*Vocabulary, MergeList, error) {
	res, err := trainer.New(cfg).Train(ctx, corpus, specialTokens, vocabSize)
	if err != nil {
		return nil, nil, err
	}
	return res.Vocab, res.Merges, nil
}

// NewTokenizer builds a tokenizer from model data; specialTokens must match training.
func NewTokenizer(v *Vocabulary, merges MergeList, specialTokens []string) (*Tokenizer, error) {
	return tokenizer.New(v, merges, specialTokens)
}

// Save writes vocab.json and merges.txt into dir.
func Save(dir string, v *Vocabulary, merges MergeList) error {
	return vocab.Save(dir, v, merges)
}

// Load builds a tokenizer from the vocab.json and merges.txt in dir.
func Load(dir string, specialTokens []string) (*Tokenizer, error) {
	return LoadWithOptions(dir, specialTokens, tokenizer.DefaultOptions())
}

// LoadWithOptions is Load with explicit tokenizer options.
func LoadWithOptions(dir string, specialTokens []string, opts Options) (*Tokenizer, error) {
	return tokenizer.LoadTokenizerFromFiles(
		filepath.Join(dir, vocab.VocabFileName),
		filepath.Join(dir, vocab.MergesFileName),
		specialTokens, opts)
}
