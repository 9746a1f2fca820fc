package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgnsrekt/copilot_capture/internal/config"
	"github.com/dgnsrekt/copilot_capture/internal/logging"
	"github.com/dgnsrekt/copilot_capture/internal/runner"
)

func main() {
	filter := flag.String("filter", "", "forwarded to the proxy as --filter")
	flag.Parse()

	cfg, err := config.LoadRunner()
	if err != nil {
		slog.Error("failed to load runner config", "error", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.New(cfg, os.Stdout, os.Stderr).Run(ctx, *filter); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error running proxy: %v\n", err)
		os.Exit(1)
	}
}
