package config

// Config is the campaign configuration. Relative paths are resolved against
// Dir by Load, so every component receives absolute locations.
type Config struct {
	Dir string `yaml:"-" mapstructure:"-"`

	Model        string `yaml:"model" mapstructure:"model"`
	GeminiAPIKey string `yaml:"gemini_api_key,omitempty" mapstructure:"gemini_api_key"`
	Debug        bool   `yaml:"debug,omitempty" mapstructure:"debug"`

	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Lore      LoreConfig      `yaml:"lore" mapstructure:"lore"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Delta     DeltaConfig     `yaml:"delta" mapstructure:"delta"`
	Snapshots SnapshotsConfig `yaml:"snapshots" mapstructure:"snapshots"`
}

// PathsConfig locates every persisted campaign file.
type PathsConfig struct {
	State        string `yaml:"state" mapstructure:"state"`
	Snapshots    string `yaml:"snapshots" mapstructure:"snapshots"`
	Sessions     string `yaml:"sessions" mapstructure:"sessions"`
	Public       string `yaml:"public" mapstructure:"public"`
	Chapters     string `yaml:"chapters" mapstructure:"chapters"`
	ChapterState string `yaml:"chapter_state" mapstructure:"chapter_state"`
	Logs         string `yaml:"logs" mapstructure:"logs"`
}

// LoreConfig selects where canon is retrieved from.
type LoreConfig struct {
	// Provider is one of "none", "chromem" or "chroma".
	Provider    string `yaml:"provider" mapstructure:"provider"`
	Target      string `yaml:"target,omitempty" mapstructure:"target"`
	Collection  string `yaml:"collection" mapstructure:"collection"`
	TopK        int    `yaml:"top_k" mapstructure:"top_k"`
	Root        string `yaml:"root" mapstructure:"root"`
	PersistPath string `yaml:"persist_path" mapstructure:"persist_path"`
}

// EmbeddingConfig points at the Ollama server used to embed lore.
type EmbeddingConfig struct {
	Target string `yaml:"target" mapstructure:"target"`
	Model  string `yaml:"model" mapstructure:"model"`
}

type DeltaConfig struct {
	// Repair runs a broken delta block through a JSON repairer once.
	Repair bool `yaml:"repair" mapstructure:"repair"`
}

type SnapshotsConfig struct {
	Compress bool `yaml:"compress" mapstructure:"compress"`
}

// Lore providers.
const (
	LoreNone    = "none"
	LoreChromem = "chromem"
	LoreChroma  = "chroma"
)
