// Command vocab-check loads a vocab.json and merges.txt pair, verifies that it can drive a
// tokenizer and optionally round-trips a sample string through it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"github.com/bytebpe/internal/logging"
	"github.com/bytebpe/internal/tokenizer"
	"github.com/bytebpe/internal/vocab"
)

var (
	dir           = pflag.String("dir", filepath.Join("testdata", "gpt2"), "Directory holding vocab.json and merges.txt.")
	fetch         = pflag.Bool("fetch-gpt2", false, "Download the reference GPT-2 vocabulary into --dir first.")
	specialTokens = pflag.StringArray("special-token", nil, "Repeatable. Special token the vocabulary was trained with.")
	sample        = pflag.String("sample", "", "Text to encode and decode after loading.")
	logVerbosity  = pflag.IntP("v", "v", logging.DEFAULT, "Number for the log level verbosity.")
)

func main() {
	pflag.Parse()

	logger, err := logging.NewLogger(*logVerbosity, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *fetch {
		logger.Info("Downloading GPT-2 vocabulary", "dir", *dir)
		if err := fetchGPT2(ctx, *dir); err != nil {
			logging.Fatal(logger, err, "Failed to fetch vocabulary")
		}
	}

	opts := tokenizer.DefaultOptions()
	opts.Logger = logger
	tok, err := tokenizer.LoadTokenizerFromFiles(
		filepath.Join(*dir, vocab.VocabFileName),
		filepath.Join(*dir, vocab.MergesFileName),
		*specialTokens, opts)
	if err != nil {
		logging.Fatal(logger, err, "Failed to load tokenizer", "dir", *dir)
	}
	logger.Info("Vocab loaded successfully and ids are dense",
		"vocabSize", tok.VocabSize(), "merges", len(tok.Merges()), "specialTokens", tok.SpecialTokens())

	if *sample != "" {
		if err := checkSample(logger, tok, *sample); err != nil {
			logging.Fatal(logger, err, "Sample round trip failed")
		}
	}
}

func checkSample(logger logr.Logger, tok *tokenizer.Tokenizer, text string) error {
	ids := tok.Encode(text)
	decoded := tok.Decode(ids)
	logger.Info("Encoded sample", "tokens", len(ids), "ids", ids)
	if decoded != text {
		return fmt.Errorf("decoded %q, want %q", decoded, text)
	}
	return nil
}
