package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag ties a command-line flag to its configuration key so that commands
// sharing a setting cannot drift apart.
type Flag struct {
	Name        string
	Shorthand   string
	ViperKey    string
	Description string
}

// FlagSet maps registry keys to flags.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagModel        = "model"
	FlagDebug        = "debug"
	FlagLoreProvider = "lore-provider"
	FlagLoreTarget   = "lore-target"
	FlagTopK         = "top-k"
	FlagRepair       = "repair"
	FlagCompress     = "compress"
	FlagEmbedTarget  = "embedding-target"
	FlagEmbedModel   = "embedding-model"
)

// Flags is the registry shared by every command.
var Flags = FlagSet{
	FlagModel:        {Name: "model", Shorthand: "m", ViperKey: "model", Description: "Gemini model used to run the table"},
	FlagDebug:        {Name: "debug", ViperKey: "debug", Description: "Enable debug logging"},
	FlagLoreProvider: {Name: "lore-provider", ViperKey: "lore.provider", Description: "Lore retrieval provider (none, chromem, chroma)"},
	FlagLoreTarget:   {Name: "lore-target", ViperKey: "lore.target", Description: "Chroma server URL"},
	FlagTopK:         {Name: "top-k", Shorthand: "k", ViperKey: "lore.top_k", Description: "Number of lore chunks retrieved per turn"},
	FlagRepair:       {Name: "repair", ViperKey: "delta.repair", Description: "Attempt to repair malformed state deltas"},
	FlagCompress:     {Name: "compress", ViperKey: "snapshots.compress", Description: "Write zstd-compressed snapshots"},
	FlagEmbedTarget:  {Name: "embedding-target", ViperKey: "embedding.target", Description: "Ollama server URL used for embeddings"},
	FlagEmbedModel:   {Name: "embedding-model", ViperKey: "embedding.model", Description: "Ollama embedding model"},
}

// AddStringFlag registers a string flag from fs on cmd.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}
	d := defaults()
	cmd.Flags().StringVarP(target, def.Name, def.Shorthand, d.GetString(def.ViperKey), def.Description)
}

// AddIntFlag registers an int flag from fs on cmd.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}
	d := defaults()
	cmd.Flags().IntVarP(target, def.Name, def.Shorthand, d.GetInt(def.ViperKey), def.Description)
}

// AddBoolFlag registers a bool flag from fs on cmd.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, key string, target *bool) {
	def, ok := fs[key]
	if !ok {
		return
	}
	d := defaults()
	cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, d.GetBool(def.ViperKey), def.Description)
}

// BindRegisteredFlags binds the named flags of cmd into v. Only flags the
// user actually set override lower layers.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, keys []string) {
	for _, key := range keys {
		def, ok := fs[key]
		if !ok {
			continue
		}
		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}
		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
