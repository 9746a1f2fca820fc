package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/copilot_capture/internal/api"
	"github.com/dgnsrekt/copilot_capture/internal/capture"
	"github.com/dgnsrekt/copilot_capture/internal/config"
	"github.com/dgnsrekt/copilot_capture/internal/logging"
	"github.com/dgnsrekt/copilot_capture/internal/proxy"
	"github.com/dgnsrekt/copilot_capture/internal/relay"
	"github.com/dgnsrekt/copilot_capture/internal/storage"
)

func main() {
	port := flag.Int("port", 0, "listen port (overrides CAPTURE_PORT)")
	filter := flag.String("filter", "", "only capture requests whose URL or path contains this text")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load capture config", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *filter != "" {
		cfg.Filter = *filter
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid capture config", "error", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("capture config loaded",
		"listen_addr", cfg.ListenAddr(),
		"hosts", cfg.Hosts,
		"filter", cfg.Filter,
		"persist_mode", cfg.PersistMode,
		"output_dir", cfg.OutputDir,
		"max_records", cfg.MaxRecords,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	var registry *storage.WriterRegistry
	if cfg.PersistMode == config.PersistLog {
		registry = storage.NewWriterRegistry(cfg.OutputDir, config.FilePrefix, storage.Stamp(time.Now()), cfg.BufferSize, cfg.MaxFileSizeMB)
	}
	snapshots := storage.NewSnapshotWriter(cfg.OutputDir, config.FilePrefix)
	broker := relay.NewBroker()

	hook := capture.NewHook(capture.Options{
		Hosts:              cfg.Hosts,
		Filter:             cfg.Filter,
		InterestKeywords:   cfg.InterestKeywords,
		MaxRecords:         cfg.MaxRecords,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		SnapshotOnResponse: cfg.PersistMode == config.PersistSnapshot,
	}, registry, snapshots, broker)

	px, err := proxy.New(hook, proxy.Options{
		MaxBodyBytes:     cfg.MaxBodyBytes,
		CACertFile:       cfg.CACertFile,
		CAKeyFile:        cfg.CAKeyFile,
		UpstreamInsecure: cfg.UpstreamInsecure,
		Verbose:          cfg.Verbose,
	})
	if err != nil {
		slog.Error("failed to build proxy", "error", err)
		os.Exit(1)
	}
	px.SetControlHandler(api.NewServer(hook, broker, px.CACertPEM()))

	srv := &http.Server{Addr: cfg.ListenAddr(), Handler: px.Handler()}

	go func() {
		slog.Info("copilot capture proxy listening",
			"addr", cfg.ListenAddr(),
			"docs", "http://"+cfg.ListenAddr()+"/docs",
			"ca", "http://"+cfg.ListenAddr()+"/ca.pem",
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("proxy server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("proxy shutdown failed", "error", err)
	}
	// Hijacked MITM tunnels outlive Shutdown; the closed hook refuses their
	// flows so nothing reaches the registry after it is closed.
	if err := hook.Close(); err != nil {
		slog.Error("final persist failed", "error", err)
	}
	if registry != nil {
		if err := registry.Close(); err != nil {
			slog.Warn("capture log close failed", "error", err)
		}
	}
	slog.Info("copilot capture proxy stopped")
}
