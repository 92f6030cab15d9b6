package main

import (
	"bytes"
	"io"
	"runtime"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) *Options {
	t.Helper()
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	require.NoError(t, opts.Complete())
	return opts
}

func TestOptionsDefaults(t *testing.T) {
	opts := parse(t, "--input", "corpus.txt")
	require.NoError(t, opts.Validate())

	assert.Equal(t, DefaultVocabSize, opts.VocabSize)
	assert.Equal(t, []string{EndOfTextToken}, opts.SpecialTokens)
	assert.Equal(t, runtime.GOMAXPROCS(0), opts.Workers)
	assert.Equal(t, 4*opts.Workers, opts.Shards)

	cfg := opts.TrainerConfig()
	assert.Equal(t, opts.Workers, cfg.Workers)
	assert.Equal(t, opts.Shards, cfg.Shards)
	assert.Equal(t, opts.MaxDocumentSize, cfg.MaxDocumentSize)
}

func TestOptionsRepeatableSpecialTokens(t *testing.T) {
	opts := parse(t, "-i", "-", "--special-token", "<|a|>", "--special-token", "<|b|>,<|c|>", "--workers", "3")
	require.NoError(t, opts.Validate())

	// StringArray does not split on commas
	assert.Equal(t, []string{"<|a|>", "<|b|>,<|c|>"}, opts.SpecialTokens)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, 12, opts.Shards)
}

func TestOptionsValidate(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"missing input", nil},
		{"vocab size below base", []string{"-i", "x", "--vocab-size", "256"}},
		{"empty special token", []string{"-i", "x", "--special-token", ""}},
		{"negative workers", []string{"-i", "x", "--workers", "-2"}},
		{"negative verbosity", []string{"-i", "x", "-v", "-1"}},
		{"zero document size", []string{"-i", "x", "--max-document-size", "0"}},
		{"empty output dir", []string{"-i", "x", "-o", ""}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := parse(t, tc.args...)
			assert.Error(t, opts.Validate())
		})
	}
}

func TestOptionsVocabSizeAtBase(t *testing.T) {
	opts := parse(t, "-i", "x", "--vocab-size", "257")
	assert.NoError(t, opts.Validate())
}

func TestRunReportsFlagErrorsOnStderr(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var stderr bytes.Buffer

	err := run(fs, []string{"--vocab-size", "many"}, &stderr)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "failed to parse flags")
	assert.Contains(t, stderr.String(), "many")
}
