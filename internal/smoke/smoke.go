package smoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dgnsrekt/copilot_capture/internal/config"
)

const (
	vscodeUserAgent  = "VSCode-Copilot"
	githubAPIVersion = "2022-11-28"
	errorBodyBytes   = 500
)

// ErrTokenFormat is returned when the token lacks the required prefix.
var ErrTokenFormat = errors.New("invalid token format")

// ModelsResult counts the models visible to a token.
type ModelsResult struct {
	Total   int
	Enabled int
}

// LoadToken reads and trims the token file and checks its prefix.
func LoadToken(path, prefix string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(token, prefix) {
		return "", fmt.Errorf("%w (must start with %s)", ErrTokenFormat, prefix)
	}
	return token, nil
}

// CheckModels lists the models for token. A model counts as enabled unless
// model_picker_enabled is explicitly false.
func CheckModels(ctx context.Context, client *http.Client, endpoint, token string, vscodeHeaders bool) (ModelsResult, error) {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ModelsResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if vscodeHeaders {
		req.Header.Set("User-Agent", vscodeUserAgent)
		req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	}

	resp, err := c.Do(req)
	if err != nil {
		return ModelsResult{}, fmt.Errorf("models request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyBytes))
		return ModelsResult{}, fmt.Errorf("token check failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Data []struct {
			ModelPickerEnabled *bool `json:"model_picker_enabled"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ModelsResult{}, fmt.Errorf("decode models response: %w", err)
	}

	result := ModelsResult{Total: len(payload.Data)}
	for _, m := range payload.Data {
		if m.ModelPickerEnabled == nil || *m.ModelPickerEnabled {
			result.Enabled++
		}
	}
	return result, nil
}

// CheckProxy fetches probeURL through the proxy at proxyURL and requires a
// 200 response.
func CheckProxy(ctx context.Context, proxyURL, probeURL string, timeout time.Duration) error {
	pu, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("parse proxy url: %w", err)
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(pu)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("proxy connection failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proxy responded with status %d", resp.StatusCode)
	}
	return nil
}

// Run performs the token, models and proxy checks in order, printing progress
// to w. The first failure stops the run and is returned.
func Run(ctx context.Context, cfg *config.SmokeConfig, w io.Writer) error {
	fmt.Fprintln(w, "GitHub Copilot proxy setup test")
	fmt.Fprintln(w, strings.Repeat("=", 50))

	token, err := LoadToken(cfg.TokenFile, cfg.TokenPrefix)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Token loaded (format: %s)\n", tokenHint(token))

	fmt.Fprintln(w, "Testing models endpoint...")
	models, err := CheckModels(ctx, &http.Client{Timeout: cfg.ModelsTimeout}, cfg.ModelsURL, token, cfg.VSCodeHeaders)
	if err != nil {
		return err
	}
	slog.Info("models endpoint ok", "url", cfg.ModelsURL, "total", models.Total, "enabled", models.Enabled)
	fmt.Fprintf(w, "Token valid! Found %d total models, %d enabled\n", models.Total, models.Enabled)

	fmt.Fprintln(w, "Testing proxy connection...")
	if err := CheckProxy(ctx, cfg.ProxyURL, cfg.ProxyProbeURL, cfg.ProxyTimeout); err != nil {
		slog.Warn("proxy check failed", "proxy", cfg.ProxyURL, "probe", cfg.ProxyProbeURL, "error", err)
		fmt.Fprintln(w, "Make sure the proxy is running: copilot-run")
		return err
	}
	fmt.Fprintln(w, "Proxy connection successful")

	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w, "All tests passed! Ready to capture requests.")
	return nil
}

func tokenHint(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10] + "..."
}
