// Command bpe-train learns a byte-level BPE vocabulary from a text corpus and writes it as
// vocab.json and merges.txt.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bytebpe/internal/logging"
	"github.com/bytebpe/internal/metrics"
	"github.com/bytebpe/internal/trainer"
	"github.com/bytebpe/internal/vocab"
)

func main() {
	if err := run(pflag.CommandLine, os.Args[1:], os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run reports errors raised before the logger exists on stderr; later ones go to the logger.
func run(fs *pflag.FlagSet, args []string, stderr io.Writer) error {
	opts := NewOptions()
	opts.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "failed to parse flags: %v\n", err)
		return err
	}

	if err := opts.Complete(); err != nil {
		fmt.Fprintf(stderr, "failed to complete flags: %v\n", err)
		return err
	}

	logger, err := logging.NewLogger(opts.LogVerbosity, opts.Development)
	if err != nil {
		fmt.Fprintf(stderr, "failed to build logger: %v\n", err)
		return err
	}
	setupLog := logger.WithName("setup")

	if err := opts.Validate(); err != nil {
		setupLog.Error(err, "Failed to validate flags")
		return err
	}

	// Print all flag values
	flags := make(map[string]any)
	fs.VisitAll(func(f *pflag.Flag) {
		flags[f.Name] = f.Value
	})
	setupLog.Info("Flags processed", "flags", flags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logr.NewContext(ctx, logger)

	if opts.MetricsBindAddress != "" {
		srv := serveMetrics(opts.MetricsBindAddress, setupLog)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	corpus, closeCorpus, err := openCorpus(opts.Input)
	if err != nil {
		setupLog.Error(err, "Failed to open corpus", "input", opts.Input)
		return err
	}
	defer closeCorpus()

	start := time.Now()
	res, err := trainer.New(opts.TrainerConfig()).Train(ctx, corpus, opts.SpecialTokens, opts.VocabSize)
	if err != nil {
		logger.Error(err, "Training failed")
		return err
	}

	if err := vocab.Save(opts.OutputDir, res.Vocab, res.Merges); err != nil {
		logger.Error(err, "Failed to save vocabulary", "dir", opts.OutputDir)
		return err
	}

	logger.Info("Vocabulary written",
		"dir", opts.OutputDir, "vocabSize", res.Vocab.Len(), "merges", len(res.Merges), "elapsed", time.Since(start))
	return nil
}

func openCorpus(path string) (io.Reader, func(), error) {
	if path == "-" {
		return bufio.NewReaderSize(os.Stdin, 1<<20), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return bufio.NewReaderSize(f, 1<<20), func() { f.Close() }, nil
}

func serveMetrics(addr string, logger logr.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("Serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Metrics server stopped")
		}
	}()
	return srv
}
