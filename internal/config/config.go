// Package config loads the formbuilder CLI configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvPath names the environment variable that overrides the config location.
const EnvPath = "FORMBUILDER_CONFIG"

// Config is the top-level configuration document.
type Config struct {
	Store   StoreConfig   `toml:"store"`
	Preview PreviewConfig `toml:"preview"`
	Log     LogConfig     `toml:"log"`
}

// StoreConfig selects the form store backend. Path may name a directory, in
// which case the backend picks its default file name inside it.
type StoreConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// PreviewConfig controls interactive previews.
type PreviewConfig struct {
	Output      string `toml:"output"`
	AllowChains bool   `toml:"allow_chains"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend: "file",
			Path:    baseDir(),
		},
		Preview: PreviewConfig{Output: "json"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns FORMBUILDER_CONFIG when set, otherwise config.toml in
// the user config directory.
func DefaultPath() string {
	if path := strings.TrimSpace(os.Getenv(EnvPath)); path != "" {
		return path
	}
	return filepath.Join(baseDir(), "config.toml")
}

// Load reads path over the defaults. An empty path uses DefaultPath, and a
// missing default file is not an error. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath()
		explicit = os.Getenv(EnvPath) != ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("config: %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(filepath.Dir(path), cfg.Store.Path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated values.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.backend must be file or sqlite, got %q", c.Store.Backend))
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	switch c.Preview.Output {
	case "json", "form", "pretty":
	default:
		errs = append(errs, fmt.Errorf("preview.output must be json, form or pretty, got %q", c.Preview.Output))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not recognised", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func baseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".formbuilder"
	}
	return filepath.Join(dir, "formbuilder")
}
