package config

import "strings"

// RunnerConfig holds configuration for the proxy launcher.
type RunnerConfig struct {
	ListenHost   string
	PortStart    int
	PortAttempts int
	ProxyBin     string
	LogLevel     string
	LogFile      string
}

// LoadRunner reads runner configuration from environment variables.
func LoadRunner() (*RunnerConfig, error) {
	loadDotEnv()

	cfg := &RunnerConfig{
		ListenHost:   getEnvOrDefault("CAPTURE_LISTEN_HOST", "127.0.0.1"),
		PortStart:    getEnvIntOrDefault("RUNNER_PORT_START", 8080),
		PortAttempts: getEnvIntOrDefault("RUNNER_PORT_ATTEMPTS", 10),
		ProxyBin:     getEnvOrDefault("RUNNER_PROXY_BIN", ""),
		LogLevel:     strings.ToLower(getEnvOrDefault("RUNNER_LOG_LEVEL", "info")),
		LogFile:      getEnvOrDefault("RUNNER_LOG_FILE", "logs/copilot_run.log"),
	}
	if cfg.PortAttempts < 1 {
		cfg.PortAttempts = 1
	}
	return cfg, nil
}
