package config

import (
	"strings"
	"time"
)

// SmokeConfig holds configuration for the token and proxy smoke test.
type SmokeConfig struct {
	TokenFile     string
	TokenPrefix   string
	ModelsURL     string
	ProxyURL      string
	ProxyProbeURL string
	// VSCodeHeaders adds the editor client headers to the models request.
	VSCodeHeaders bool
	ModelsTimeout time.Duration
	ProxyTimeout  time.Duration
	LogLevel      string
	LogFile       string
}

// LoadSmoke reads smoke test configuration from environment variables.
func LoadSmoke() (*SmokeConfig, error) {
	loadDotEnv()

	return &SmokeConfig{
		TokenFile:     getEnvOrDefault("SMOKE_TOKEN_FILE", ".token"),
		TokenPrefix:   getEnvOrDefault("SMOKE_TOKEN_PREFIX", "gho_"),
		ModelsURL:     getEnvOrDefault("SMOKE_MODELS_URL", "https://api.githubcopilot.com/models"),
		ProxyURL:      getEnvOrDefault("SMOKE_PROXY_URL", "http://localhost:8080"),
		ProxyProbeURL: getEnvOrDefault("SMOKE_PROXY_PROBE_URL", "http://httpbin.org/ip"),
		VSCodeHeaders: getEnvBoolOrDefault("SMOKE_VSCODE_HEADERS", false),
		ModelsTimeout: time.Duration(getEnvIntOrDefault("SMOKE_MODELS_TIMEOUT_MS", 10000)) * time.Millisecond,
		ProxyTimeout:  time.Duration(getEnvIntOrDefault("SMOKE_PROXY_TIMEOUT_MS", 5000)) * time.Millisecond,
		LogLevel:      strings.ToLower(getEnvOrDefault("SMOKE_LOG_LEVEL", "info")),
		LogFile:       getEnvOrDefault("SMOKE_LOG_FILE", "logs/copilot_smoke.log"),
	}, nil
}

// AnalyzeDir returns the directory scanned by the analyzer.
func AnalyzeDir() string {
	loadDotEnv()
	return getEnvOrDefault("CAPTURE_OUTPUT_DIR", "temp")
}
