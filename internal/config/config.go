// Package config loads notelog configuration.
//
// A config file may be YAML, TOML or JSON, chosen by extension. Missing
// files yield defaults. NOTELOG_* environment variables override file
// values, and the result is checked against an embedded CUE schema.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config is the notelog configuration.
type Config struct {
	// DataDir holds the cache, offline queue and sync state.
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	// RemoteURL is the base URL of the notes service. Empty means offline.
	RemoteURL string `json:"remote_url" yaml:"remote_url" toml:"remote_url"`
	// RequestTimeout bounds each remote call, as a Go duration.
	RequestTimeout string `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	// ValidateLogs checks log invariants after every local mutation.
	ValidateLogs bool `json:"validate_logs" yaml:"validate_logs" toml:"validate_logs"`
	// Fsync flushes log streams to disk on every append.
	Fsync     bool   `json:"fsync" yaml:"fsync" toml:"fsync"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
}

// Default returns the default configuration.
func Default() *Config {
	dir := ".notelog"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".notelog")
	}
	return &Config{
		DataDir:        dir,
		RequestTimeout: "30s",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Timeout returns RequestTimeout as a duration. Validate guarantees it parses.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Load reads the config at path, applies environment overrides and
// validates the result. An empty path or a missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	return nil
}

// ApplyEnvOverrides replaces fields with NOTELOG_* environment values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NOTELOG_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v, ok := os.LookupEnv("NOTELOG_REMOTE_URL"); ok {
		c.RemoteURL = v
	}
	if v := os.Getenv("NOTELOG_REQUEST_TIMEOUT"); v != "" {
		c.RequestTimeout = v
	}
	if v := os.Getenv("NOTELOG_VALIDATE_LOGS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ValidateLogs = b
		}
	}
	if v := os.Getenv("NOTELOG_FSYNC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Fsync = b
		}
	}
	if v := os.Getenv("NOTELOG_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("NOTELOG_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
}

// ValidationError lists every schema violation found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks c against the schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		var problems []string
		for _, e := range cueerrors.Errors(err) {
			problems = append(problems, e.Error())
		}
		return &ValidationError{Problems: problems}
	}

	if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
		return &ValidationError{Problems: []string{err.Error()}}
	}
	return nil
}
