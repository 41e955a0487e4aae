// Package config loads application configuration (defaults, YAML file,
// environment, flags) and validates per-deck scheduling configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	flag "github.com/spf13/pflag"
)

// Config is the application-level configuration.
type Config struct {
	Database string `koanf:"database"`

	Remote struct {
		BaseURL string        `koanf:"base_url"`
		APIKey  string        `koanf:"api_key"`
		Timeout time.Duration `koanf:"timeout"`
	} `koanf:"remote"`

	Sync struct {
		Interval time.Duration `koanf:"interval"`
		Cooldown time.Duration `koanf:"cooldown"`
		Pacing   time.Duration `koanf:"pacing"`
	} `koanf:"sync"`

	Generation struct {
		APIURL string `koanf:"api_url"`
		APIKey string `koanf:"api_key"`
		Model  string `koanf:"model"`
	} `koanf:"generation"`
}

// Flags registers the command-line flags that feed into the config.
func Flags() *flag.FlagSet {
	fs := flag.NewFlagSet("cardbox", flag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("database", "cardbox.db", "path to the SQLite database file")
	fs.String("remote.base_url", "", "base URL of the remote document store")
	fs.Duration("sync.interval", 5*time.Minute, "periodic sync interval")
	return fs
}

// Load layers defaults, an optional YAML file, CARDBOX_-prefixed environment
// variables and command-line flags, in that order of increasing precedence.
func Load(fs *flag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"database":           "cardbox.db",
		"remote.timeout":     15 * time.Second,
		"sync.interval":      5 * time.Minute,
		"sync.cooldown":      30 * time.Second,
		"sync.pacing":        100 * time.Millisecond,
		"generation.api_url": "https://api.openai.com/v1/chat/completions",
		"generation.model":   "gpt-4o-mini",
	}
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("config: set default %s: %w", key, err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("CARDBOX_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "CARDBOX_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("config: load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
