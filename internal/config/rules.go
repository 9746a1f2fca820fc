package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules is the optional YAML file narrowing what the proxy captures.
// Every field is optional. A key whose CAPTURE_* variable is set in the
// environment is ignored.
type Rules struct {
	Hosts          []string `yaml:"hosts"`
	Filter         string   `yaml:"filter"`
	HeaderKeywords []string `yaml:"header_keywords"`
	MaxRecords     int      `yaml:"max_records"`
}

// LoadRules reads and validates a capture rules YAML file.
// Returns an os.ErrNotExist-wrapped error if the file is absent (caller
// silently skips in that case).
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture rules: %w", err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("capture rules: %w", err)
	}
	for i, h := range rules.Hosts {
		if h == "" {
			return nil, fmt.Errorf("capture rules: hosts[%d] is empty", i)
		}
	}
	for i, k := range rules.HeaderKeywords {
		if k == "" {
			return nil, fmt.Errorf("capture rules: header_keywords[%d] is empty", i)
		}
	}
	if rules.MaxRecords < 0 {
		return nil, fmt.Errorf("capture rules: max_records must not be negative")
	}
	return &rules, nil
}

// apply fills cfg from the rules file for every key whose environment
// variable is unset. Environment always wins over the file.
func (r *Rules) apply(cfg *Config, envSet func(string) bool) {
	if len(r.Hosts) > 0 && !envSet("CAPTURE_HOSTS") {
		cfg.Hosts = r.Hosts
	}
	if r.Filter != "" && !envSet("CAPTURE_FILTER") {
		cfg.Filter = r.Filter
	}
	if len(r.HeaderKeywords) > 0 && !envSet("CAPTURE_HEADER_KEYWORDS") {
		cfg.InterestKeywords = r.HeaderKeywords
	}
	if r.MaxRecords > 0 && !envSet("CAPTURE_MAX_RECORDS") {
		cfg.MaxRecords = r.MaxRecords
	}
}
