// Package config loads the orchestrator's configuration from a JSON
// document, the same JSON-only approach the autoload resolver already uses
// for composer.json (spec.md §6's "Configuration" interface).
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tourze/php-packer-sub000/internal/perror"
)

// Config is spec.md §6's Configuration interface: required entry/output/
// database paths plus the optional keys that shape a pack() run.
type Config struct {
	Entry    string `json:"entry"`
	Output   string `json:"output"`
	Database string `json:"database"`

	Exclude      []string `json:"exclude,omitempty"`
	Assets       []string `json:"assets,omitempty"`
	Minify       bool     `json:"minify,omitempty"`
	Comments     bool     `json:"comments,omitempty"`
	Debug        bool     `json:"debug,omitempty"`
	OptimizeCode bool     `json:"optimize_code,omitempty"`

	// ProjectRoot is not a JSON key: it is derived as the directory
	// containing the config file itself, since every path in the document
	// (entry, database, exclude patterns) is relative to it.
	ProjectRoot string `json:"-"`
}

// Load reads and validates a Config from path. Required-key violations
// surface as *perror.ConfigurationError, per spec.md §7.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &perror.ConfigurationError{Message: err.Error()}
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, &perror.ConfigurationError{Message: "invalid JSON: " + err.Error()}
	}
	c.ProjectRoot = filepath.Dir(path)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the required keys are present, per spec.md §6.
func (c *Config) Validate() error {
	switch {
	case c.Entry == "":
		return &perror.ConfigurationError{Key: "entry", Message: "required"}
	case c.Output == "":
		return &perror.ConfigurationError{Key: "output", Message: "required"}
	case c.Database == "":
		return &perror.ConfigurationError{Key: "database", Message: "required"}
	}
	return nil
}
