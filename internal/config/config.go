// Package config loads the campaign configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/chronicle/internal/fsutil"
)

// Load reads the configuration of the campaign in dir.
func Load(dir string) (*Config, error) {
	v, err := InitViper(dir)
	if err != nil {
		return nil, err
	}
	return LoadConfig(v, dir)
}

// LoadConfig decodes v into a Config for the campaign in dir and resolves
// its relative paths.
func LoadConfig(v *viper.Viper, dir string) (*Config, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving campaign directory: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Dir = abs
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, p := range []*string{
		&cfg.Paths.State,
		&cfg.Paths.Snapshots,
		&cfg.Paths.Sessions,
		&cfg.Paths.Public,
		&cfg.Paths.Chapters,
		&cfg.Paths.ChapterState,
		&cfg.Paths.Logs,
		&cfg.Lore.Root,
		&cfg.Lore.PersistPath,
	} {
		*p = cfg.Resolve(*p)
	}
	return cfg, nil
}

// Resolve joins a relative path onto the campaign directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Lore.Provider {
	case LoreNone, LoreChromem, LoreChroma:
	default:
		return fmt.Errorf("unknown lore provider %q (want %s, %s or %s)", c.Lore.Provider, LoreNone, LoreChromem, LoreChroma)
	}
	if c.Lore.TopK < 1 {
		return fmt.Errorf("lore.top_k must be positive, got %d", c.Lore.TopK)
	}
	if c.Model == "" {
		return errors.New("model must not be empty")
	}
	return nil
}

// APIKey returns the Gemini API key or an error explaining how to set it.
func (c *Config) APIKey() (string, error) {
	if c.GeminiAPIKey == "" {
		return "", errors.New("GEMINI_API_KEY environment variable is not set")
	}
	return c.GeminiAPIKey, nil
}

// WriteDefault writes a chronicle.yaml holding the defaults into dir. An
// existing file is left alone and reported with an error wrapping
// os.ErrExist.
func WriteDefault(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	data, err := yaml.Marshal(NewDefaultConfig())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	err = fsutil.CreateExclusive(path, 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Exists reports whether dir already holds a configuration file.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}
