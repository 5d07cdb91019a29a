package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper returns a viper instance for the campaign in dir.
//
// Precedence, highest first: flags bound with BindRegisteredFlags,
// CHRONICLE_* environment variables, chronicle.yaml, NewDefaultConfig.
// The API key is also read from GEMINI_API_KEY.
func InitViper(dir string) (*viper.Viper, error) {
	v := viper.New()
	setViperDefaults(v)

	v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("CHRONICLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("gemini_api_key", "CHRONICLE_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, err
	}
	return v, nil
}

func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("model", d.Model)
	v.SetDefault("gemini_api_key", d.GeminiAPIKey)
	v.SetDefault("debug", d.Debug)

	v.SetDefault("paths.state", d.Paths.State)
	v.SetDefault("paths.snapshots", d.Paths.Snapshots)
	v.SetDefault("paths.sessions", d.Paths.Sessions)
	v.SetDefault("paths.public", d.Paths.Public)
	v.SetDefault("paths.chapters", d.Paths.Chapters)
	v.SetDefault("paths.chapter_state", d.Paths.ChapterState)
	v.SetDefault("paths.logs", d.Paths.Logs)

	v.SetDefault("lore.provider", d.Lore.Provider)
	v.SetDefault("lore.target", d.Lore.Target)
	v.SetDefault("lore.collection", d.Lore.Collection)
	v.SetDefault("lore.top_k", d.Lore.TopK)
	v.SetDefault("lore.root", d.Lore.Root)
	v.SetDefault("lore.persist_path", d.Lore.PersistPath)

	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)

	v.SetDefault("delta.repair", d.Delta.Repair)
	v.SetDefault("snapshots.compress", d.Snapshots.Compress)
}
