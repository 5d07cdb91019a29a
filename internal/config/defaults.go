package config

// FileName is the configuration file looked up in the campaign directory.
const FileName = "chronicle.yaml"

// NewDefaultConfig returns the configuration of a fresh campaign, laid out
// the way the original table scripts kept their files.
func NewDefaultConfig() *Config {
	return &Config{
		Model: "gemini-2.5-flash",
		Paths: PathsConfig{
			State:        "state/current.json",
			Snapshots:    "state/snapshots",
			Sessions:     "sessions",
			Public:       "public_journal",
			Chapters:     "public_journal/chapters",
			ChapterState: "state/chapter.yaml",
			Logs:         "logs",
		},
		Lore: LoreConfig{
			Provider:    LoreNone,
			Target:      "http://localhost:8000",
			Collection:  "lore",
			TopK:        6,
			Root:        "lore",
			PersistPath: "state/lore_db",
		},
		Embedding: EmbeddingConfig{
			Target: "http://localhost:11434",
			Model:  "nomic-embed-text",
		},
	}
}
