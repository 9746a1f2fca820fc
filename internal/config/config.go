package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Persist modes for captured records.
const (
	PersistLog      = "log"
	PersistSnapshot = "snapshot"
)

// FilePrefix is the leading part of every capture file name.
const FilePrefix = "mitm-captured"

// Config holds all configuration for the capture proxy.
type Config struct {
	// Listener
	ListenHost string
	Port       int
	Verbose    bool

	// Capture gate
	Hosts            []string
	Filter           string
	InterestKeywords []string
	RulesFile        string

	// Storage settings
	OutputDir     string
	PersistMode   string
	MaxRecords    int
	MaxFileSizeMB int
	BufferSize    int

	// Payload safety limits
	MaxBodyBytes int

	// MITM certificate authority; goproxy's built-in CA when empty.
	CACertFile       string
	CAKeyFile        string
	UpstreamInsecure bool

	LogLevel string
	LogFile  string
}

// DefaultHosts are the API domains captured when nothing else is configured.
var DefaultHosts = []string{"githubcopilot.com", "api.github.com"}

// DefaultInterestKeywords select the headers copied into auth_headers.
var DefaultInterestKeywords = []string{"auth", "hmac", "github", "editor", "machine", "session", "client"}

// Load reads configuration from environment variables, an optional .env file
// and an optional YAML capture rules file.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		ListenHost:       getEnvOrDefault("CAPTURE_LISTEN_HOST", "127.0.0.1"),
		Port:             getEnvIntOrDefault("CAPTURE_PORT", 8080),
		Verbose:          getEnvBoolOrDefault("CAPTURE_PROXY_VERBOSE", false),
		Hosts:            getEnvListOrDefault("CAPTURE_HOSTS", DefaultHosts),
		Filter:           getEnvOrDefault("CAPTURE_FILTER", ""),
		InterestKeywords: getEnvListOrDefault("CAPTURE_HEADER_KEYWORDS", DefaultInterestKeywords),
		RulesFile:        rulesFileFromEnv(),
		OutputDir:        getEnvOrDefault("CAPTURE_OUTPUT_DIR", "temp"),
		PersistMode:      strings.ToLower(getEnvOrDefault("CAPTURE_PERSIST_MODE", PersistLog)),
		MaxRecords:       getEnvIntOrDefault("CAPTURE_MAX_RECORDS", 1000),
		MaxFileSizeMB:    getEnvIntOrDefault("CAPTURE_MAX_FILE_SIZE_MB", 200),
		BufferSize:       getEnvIntOrDefault("CAPTURE_BUFFER_SIZE", 5000),
		MaxBodyBytes:     getEnvIntOrDefault("CAPTURE_MAX_BODY_BYTES", 10*1024*1024),
		CACertFile:       getEnvOrDefault("CAPTURE_CA_CERT", ""),
		CAKeyFile:        getEnvOrDefault("CAPTURE_CA_KEY", ""),
		UpstreamInsecure: getEnvBoolOrDefault("CAPTURE_SSL_INSECURE", true),
		LogLevel:         strings.ToLower(getEnvOrDefault("CAPTURE_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("CAPTURE_LOG_FILE", "logs/copilot_proxy.log"),
	}

	if cfg.RulesFile != "" {
		rules, err := LoadRules(cfg.RulesFile)
		switch {
		case err == nil:
			rules.apply(cfg, envSet)
		case errors.Is(err, os.ErrNotExist):
			slog.Debug("capture rules file not found", "path", cfg.RulesFile)
		default:
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and clamps soft limits.
func (c *Config) Validate() error {
	switch c.PersistMode {
	case PersistLog, PersistSnapshot:
	default:
		return fmt.Errorf("config: unknown persist mode %q (want %s or %s)", c.PersistMode, PersistLog, PersistSnapshot)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port out of range: %d", c.Port)
	}
	if (c.CACertFile == "") != (c.CAKeyFile == "") {
		return fmt.Errorf("config: CAPTURE_CA_CERT and CAPTURE_CA_KEY must be set together")
	}
	if c.MaxRecords < 1 {
		c.MaxRecords = 1
	}
	if c.BufferSize < 1 {
		c.BufferSize = 1
	}
	return nil
}

// ListenAddr returns host:port for the proxy listener.
func (c *Config) ListenAddr() string {
	return c.ListenHost + ":" + strconv.Itoa(c.Port)
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
}

// DefaultRulesFile is read when CAPTURE_RULES_FILE is unset.
const DefaultRulesFile = "./config/capture.yaml"

// rulesFileFromEnv returns the rules file path. An explicitly empty value or
// "none" disables the file.
func rulesFileFromEnv() string {
	val, ok := os.LookupEnv("CAPTURE_RULES_FILE")
	if !ok {
		return DefaultRulesFile
	}
	if val = strings.TrimSpace(val); strings.EqualFold(val, "none") {
		return ""
	}
	return val
}

// envSet reports whether key carries a value that getEnv* would use.
func envSet(key string) bool {
	return os.Getenv(key) != ""
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), defaultVal...)
	}
	return splitList(val)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
