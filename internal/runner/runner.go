package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/copilot_capture/internal/config"
	"github.com/dgnsrekt/copilot_capture/internal/netutil"
)

// DefaultProxyBin is the proxy executable looked up when none is configured.
const DefaultProxyBin = "copilot-proxy"

const stopGrace = 5 * time.Second

// Runner picks a free port and runs the capture proxy in the foreground.
type Runner struct {
	cfg    *config.RunnerConfig
	stdout io.Writer
	stderr io.Writer

	executable func() (string, error)
	lookPath   func(string) (string, error)
	findPort   func(host string, start, attempts int) (int, error)
}

// New creates a Runner writing its own output and the proxy's to stdout and
// stderr.
func New(cfg *config.RunnerConfig, stdout, stderr io.Writer) *Runner {
	return &Runner{
		cfg:        cfg,
		stdout:     stdout,
		stderr:     stderr,
		executable: os.Executable,
		lookPath:   exec.LookPath,
		findPort:   netutil.FindAvailablePort,
	}
}

// ProxyBin resolves the proxy executable: the configured path, then a
// copilot-proxy next to the running binary, then one on PATH.
func (r *Runner) ProxyBin() (string, error) {
	if r.cfg.ProxyBin != "" {
		return r.cfg.ProxyBin, nil
	}
	if self, err := r.executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), DefaultProxyBin)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := r.lookPath(DefaultProxyBin)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", DefaultProxyBin, err)
	}
	return path, nil
}

// Args builds the proxy command line. An empty filter is not forwarded.
func Args(port int, filter string) []string {
	args := []string{"--port", strconv.Itoa(port)}
	if filter = strings.TrimSpace(filter); filter != "" {
		args = append(args, "--filter", filter)
	}
	return args
}

// Run selects a port, prints setup instructions and runs the proxy until it
// exits or ctx is cancelled. Cancellation is a clean stop and returns nil.
func (r *Runner) Run(ctx context.Context, filter string) error {
	port, err := r.findPort(r.cfg.ListenHost, r.cfg.PortStart, r.cfg.PortAttempts)
	if err != nil {
		return err
	}

	bin, err := r.ProxyBin()
	if err != nil {
		return err
	}
	args := Args(port, filter)

	r.printInstructions(bin, args, port, filter)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = stopGrace

	slog.Info("starting proxy", "bin", bin, "port", port, "filter", filter)
	err = cmd.Run()
	if ctx.Err() != nil {
		fmt.Fprintln(r.stdout, "\nProxy stopped by user")
		return nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("proxy exited with code %d: %w", exitErr.ExitCode(), err)
		}
		return fmt.Errorf("run proxy: %w", err)
	}
	return nil
}

func (r *Runner) printInstructions(bin string, args []string, port int, filter string) {
	w := r.stdout
	if filter != "" {
		fmt.Fprintf(w, "Starting proxy with filter %q on port %d\n", filter, port)
	} else {
		fmt.Fprintf(w, "Starting proxy without filter (capturing all) on port %d\n", port)
	}
	fmt.Fprintf(w, "Command: %s %s\n", bin, strings.Join(args, " "))
	fmt.Fprintln(w, "\nSetup instructions:")
	fmt.Fprintf(w, "1. Trust the MITM CA certificate from http://localhost:%d/ca.pem\n", port)
	fmt.Fprintf(w, "2. Configure the VS Code proxy: http://localhost:%d\n", port)
	fmt.Fprintln(w, "3. Use Copilot Chat in VS Code")
	fmt.Fprintln(w, "4. Check the mitm-captured-* files in the capture output directory")
	fmt.Fprintln(w, strings.Repeat("=", 60))
}
