package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/pflag"

	"github.com/bytebpe/internal/logging"
	"github.com/bytebpe/internal/pretokenize"
	"github.com/bytebpe/internal/trainer"
	"github.com/bytebpe/internal/vocab"
)

const (
	DefaultVocabSize   = 10000
	DefaultOutputDir   = "."
	EndOfTextToken     = "<|endoftext|>"
	workersFlagName    = "workers"
	shardsFlagName     = "shards"
	vocabSizeFlagName  = "vocab-size"
	maxDocSizeFlagName = "max-document-size"
)

// Options contains the command-line configuration for bpe-train.
type Options struct {
	//
	// Training.
	//
	Input           string   // Corpus path, "-" for stdin.
	OutputDir       string   // Directory receiving vocab.json and merges.txt.
	VocabSize       int      // Target number of ids, bytes and special tokens included.
	SpecialTokens   []string // Repeatable --special-token values.
	Workers         int      // Goroutines per parallel step, 0 means GOMAXPROCS.
	Shards          int      // Frequency table shards, 0 means 4 per worker.
	MaxDocumentSize int      // Largest run of text between two special tokens.
	//
	// Diagnostics.
	//
	LogVerbosity       int    // Number for the log level verbosity.
	Development        bool   // Human readable console logs.
	MetricsBindAddress string // host:port for the Prometheus handler, empty disables it.

	// internal
	fs *pflag.FlagSet // FlagSet used in AddFlags() and consulted in Complete()
}

// NewOptions returns a new Options struct initialized with default values.
func NewOptions() *Options {
	return &Options{
		OutputDir:       DefaultOutputDir,
		VocabSize:       DefaultVocabSize,
		SpecialTokens:   []string{EndOfTextToken},
		MaxDocumentSize: pretokenize.DefaultMaxDocumentSize,
		LogVerbosity:    logging.DEFAULT,
	}
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	opts.fs = fs

	fs.StringVarP(&opts.Input, "input", "i", opts.Input,
		`Path of the training corpus, "-" reads stdin.`)
	fs.StringVarP(&opts.OutputDir, "output-dir", "o", opts.OutputDir,
		"Directory where vocab.json and merges.txt are written.")
	fs.IntVar(&opts.VocabSize, vocabSizeFlagName, opts.VocabSize,
		"Target vocabulary size including the 256 byte ids and the special tokens.")
	fs.StringArrayVar(&opts.SpecialTokens, "special-token", opts.SpecialTokens,
		"Repeatable. A special token that is never split or merged.")
	fs.IntVar(&opts.Workers, workersFlagName, opts.Workers,
		"Goroutines used by each parallel step. 0 uses GOMAXPROCS.")
	fs.IntVar(&opts.Shards, shardsFlagName, opts.Shards,
		"Number of frequency table shards. 0 uses 4 per worker.")
	fs.IntVar(&opts.MaxDocumentSize, maxDocSizeFlagName, opts.MaxDocumentSize,
		"Largest number of bytes buffered while looking for a document boundary; longer documents are cut at newlines.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity,
		"Number for the log level verbosity.")
	fs.BoolVar(&opts.Development, "development", opts.Development,
		"Use human readable console logging.")
	fs.StringVar(&opts.MetricsBindAddress, "metrics-bind-address", opts.MetricsBindAddress,
		"Address the Prometheus metrics handler listens on, empty disables it.")
}

// Complete performs post-processing of parsed command-line arguments.
func (opts *Options) Complete() error {
	if opts.Workers == 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Shards == 0 {
		opts.Shards = 4 * opts.Workers
	}
	return nil
}

// Validate checks the Options for invalid or conflicting values.
func (opts *Options) Validate() error {
	if opts.Input == "" {
		return fmt.Errorf("flag %q is required", "input")
	}
	if opts.OutputDir == "" {
		return fmt.Errorf("flag %q must not be empty", "output-dir")
	}

	for _, tok := range opts.SpecialTokens {
		if tok == "" {
			return fmt.Errorf("invalid value for flag %q: special tokens must not be empty", "special-token")
		}
	}
	base, _ := vocab.Build(opts.SpecialTokens)
	if opts.VocabSize < base.Len() {
		return fmt.Errorf("invalid value %d for flag %q: must be >= %d (bytes plus special tokens)",
			opts.VocabSize, vocabSizeFlagName, base.Len())
	}

	for _, c := range []struct {
		name  string
		value int
		min   int
	}{
		{workersFlagName, opts.Workers, 1},
		{shardsFlagName, opts.Shards, 1},
		{maxDocSizeFlagName, opts.MaxDocumentSize, 1},
		{"v", opts.LogVerbosity, 0},
	} {
		if c.value < c.min {
			return fmt.Errorf("invalid value %d for flag %q: must be >= %d", c.value, c.name, c.min)
		}
	}

	return nil
}

// TrainerConfig converts the completed options into a trainer configuration.
func (opts *Options) TrainerConfig() trainer.Config {
	return trainer.Config{
		Workers:         opts.Workers,
		Shards:          opts.Shards,
		MaxDocumentSize: opts.MaxDocumentSize,
	}
}
