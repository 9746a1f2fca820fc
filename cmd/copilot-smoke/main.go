package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dgnsrekt/copilot_capture/internal/config"
	"github.com/dgnsrekt/copilot_capture/internal/logging"
	"github.com/dgnsrekt/copilot_capture/internal/smoke"
)

func main() {
	cfg, err := config.LoadSmoke()
	if err != nil {
		slog.Error("failed to load smoke config", "error", err)
		os.Exit(1)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Debug("smoke config loaded",
		"token_file", cfg.TokenFile,
		"models_url", cfg.ModelsURL,
		"proxy_url", cfg.ProxyURL,
		"probe_url", cfg.ProxyProbeURL,
		"vscode_headers", cfg.VSCodeHeaders,
	)

	if err := smoke.Run(context.Background(), cfg, os.Stdout); err != nil {
		slog.Error("smoke test failed", "error", err)
		_, _ = fmt.Fprintf(os.Stderr, "Smoke test failed: %v\n", err)
		os.Exit(1)
	}
}
