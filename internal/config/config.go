// Package config loads the reconciler's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jward/reconciler"
	"github.com/jward/reconciler/internal/runtime"
)

// FileName is the configuration file Find looks for.
const FileName = ".reconciler.toml"

// Strategy names accepted in the strategies list.
const (
	StrategySyntax  = "syntax"
	StrategyOutline = "outline"
	StrategyScript  = "script"
)

// KnownStrategies lists every strategy name in registration order.
var KnownStrategies = []string{StrategySyntax, StrategyOutline, StrategyScript}

// Duration is a time.Duration written as a string such as "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the reconciler configuration.
type Config struct {
	// Delay is the debounce delay between the last edit and a cycle.
	Delay Duration `toml:"delay"`
	// DB is the SQLite database path. Relative paths are resolved against
	// the directory of the configuration file.
	DB string `toml:"db"`
	// ScriptsDir holds check scripts on disk under checks/. Empty uses the
	// embedded checks.
	ScriptsDir string `toml:"scripts_dir"`
	// Strategies names the strategies to register, in order.
	Strategies []string `toml:"strategies"`
	// Language overrides detection from the file extension.
	Language string `toml:"language"`
	// SkipWhileHidden gates strategies on host visibility.
	SkipWhileHidden bool `toml:"skip_while_hidden"`

	// Path is the file the configuration was loaded from, if any.
	Path string `toml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Delay:      Duration{reconciler.DefaultDelay},
		DB:         ".reconciler.db",
		Strategies: slices.Clone(KnownStrategies),
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config: %s: unknown key %q", path, undecoded[0].String())
	}
	if meta.IsDefined("db") && strings.TrimSpace(cfg.DB) == "" {
		return Config{}, fmt.Errorf("config: %s: db: must not be empty", path)
	}
	cfg.Path = path
	if cfg.DB != "" && !filepath.IsAbs(cfg.DB) {
		cfg.DB = filepath.Join(filepath.Dir(path), cfg.DB)
	}
	if cfg.ScriptsDir != "" && !filepath.IsAbs(cfg.ScriptsDir) {
		cfg.ScriptsDir = filepath.Join(filepath.Dir(path), cfg.ScriptsDir)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values. Errors name the offending key.
func (c Config) Validate() error {
	if c.Delay.Duration < 0 {
		return fmt.Errorf("delay: must not be negative, got %s", c.Delay)
	}
	seen := map[string]bool{}
	for _, s := range c.Strategies {
		if !slices.Contains(KnownStrategies, s) {
			return fmt.Errorf("strategies: unknown strategy %q (known: %s)", s, strings.Join(KnownStrategies, ", "))
		}
		if seen[s] {
			return fmt.Errorf("strategies: %q listed twice", s)
		}
		seen[s] = true
	}
	if c.Language != "" {
		if _, ok := runtime.ParserForLanguage(c.Language); !ok {
			return fmt.Errorf("language: unsupported language %q", c.Language)
		}
	}
	return nil
}

// Enabled reports whether the strategy called name is configured.
func (c Config) Enabled(name string) bool {
	return slices.Contains(c.Strategies, name)
}

// Find walks up from startDir looking for FileName. It returns the path and
// true when one exists.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("config: resolve %s: %w", startDir, err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("config: stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Resolve loads the file at path when given, otherwise the first FileName
// found from startDir upwards, otherwise the defaults.
func Resolve(path, startDir string) (Config, error) {
	if path != "" {
		return Load(path)
	}
	found, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(found)
}
