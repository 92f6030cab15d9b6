package logging

import (
	"context"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels passed to logr's V(). Higher means chattier.
const (
	DEFAULT = 2
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// NewLogger builds a zap backed logr.Logger that prints every V(n) with n <= verbosity.
func NewLogger(verbosity int, development bool) (logr.Logger, error) {
	cfg := uberzap.NewProductionConfig()
	if development {
		cfg = uberzap.NewDevelopmentConfig()
	}
	// zapr maps V(n) to zap level -n
	cfg.Level = uberzap.NewAtomicLevelAt(zapcore.Level(int8(-verbosity)))

	zl, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

// NewTestLogger creates a new Zap logger using the dev mode.
func NewTestLogger() logr.Logger {
	l, err := NewLogger(TRACE, true)
	if err != nil {
		return logr.Discard()
	}
	return l
}

// NewTestLoggerIntoContext creates a new Zap logger using the dev mode and inserts it into the given context.
func NewTestLoggerIntoContext(ctx context.Context) context.Context {
	return logr.NewContext(ctx, NewTestLogger())
}

// Fatal calls logger.Error followed by os.Exit(1).
//
// This is a utility function and should not be used in library code!
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...interface{}) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}
