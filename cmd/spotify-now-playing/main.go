// Command spotify-now-playing serves and prints the Spotify track currently playing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/justestif/spotify-now-playing/internal/config"
	"github.com/justestif/spotify-now-playing/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Output: zapcore.Lock(os.Stderr),
	})
	defer func() { _ = logger.Sync() }()

	runner := NewRunner(RunnerOpts{Config: cfg, Logger: logger})

	if err := newApp(runner).Run(ctx, os.Args); err != nil {
		logger.Error("Command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
