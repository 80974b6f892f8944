// Package config loads hook settings from built-in defaults, an optional
// TOML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultTimeout bounds the whole staging attempt.
	DefaultTimeout = 5 * time.Second
	// DefaultMeiliIndex is the journal index used when none is configured.
	DefaultMeiliIndex = "git-auto-add"
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "GIT_AUTO_ADD_CONFIG"
)

// DefaultPath is where the hook looks for a config file, relative to the
// directory the host runs it in.
var DefaultPath = filepath.Join(".claude", "git-auto-add.toml")

// Config holds every setting the hook reads.
type Config struct {
	GitBinary  string   `toml:"git_binary"`
	WorkDir    string   `toml:"work_dir"`
	Timeout    Duration `toml:"timeout"`
	Lock       bool     `toml:"lock"`
	LogFile    string   `toml:"log_file"`
	Debug      bool     `toml:"debug"`
	MeiliURL   string   `toml:"meili_url"`
	MeiliKey   string   `toml:"meili_key"`
	MeiliIndex string   `toml:"meili_index"`
	Disabled   bool     `toml:"disabled"`
}

// Duration wraps time.Duration so it can be written as "5s" in TOML.
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

// Default returns the built-in settings.
func Default() Config {
	return Config{
		GitBinary:  "git",
		Timeout:    Duration{DefaultTimeout},
		Lock:       true,
		MeiliIndex: DefaultMeiliIndex,
	}
}

// Load returns the defaults overlaid with the file at path and then the
// environment. An empty path means $GIT_AUTO_ADD_CONFIG, then DefaultPath.
// A missing file is not an error. On error the returned Config still holds
// every layer that loaded cleanly.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}

	var errs []error
	if err := loadFile(&cfg, path); err != nil {
		errs = append(errs, err)
	}
	if err := applyEnv(&cfg); err != nil {
		errs = append(errs, err)
	}
	if cfg.Timeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout.Duration))
		cfg.Timeout = Duration{DefaultTimeout}
	}
	return cfg, errors.Join(errs...)
}

// loadFile decodes path into cfg. Keys absent from the file keep their
// current value.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	next := *cfg
	if _, err := toml.Decode(string(data), &next); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	*cfg = next
	return nil
}

// applyEnv overlays environment variables onto cfg. Invalid values are
// reported and skipped.
func applyEnv(cfg *Config) error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	setString("GIT_AUTO_ADD_GIT", &cfg.GitBinary)
	setString("GIT_AUTO_ADD_DIR", &cfg.WorkDir)
	setString("GIT_AUTO_ADD_LOG", &cfg.LogFile)
	setString("MEILI_URL", &cfg.MeiliURL)
	setString("MEILI_KEY", &cfg.MeiliKey)
	setString("MEILI_INDEX", &cfg.MeiliIndex)
	setBool("GIT_AUTO_ADD_LOCK", &cfg.Lock)
	setBool("GIT_AUTO_ADD_DEBUG", &cfg.Debug)
	setBool("GIT_AUTO_ADD_DISABLED", &cfg.Disabled)

	if v := os.Getenv("GIT_AUTO_ADD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GIT_AUTO_ADD_TIMEOUT: %w", err))
		} else {
			cfg.Timeout = Duration{d}
		}
	}

	return errors.Join(errs...)
}
