// Package cli is the chronicle command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tatianab/chronicle/internal/config"
	"github.com/tatianab/chronicle/internal/logger"
)

const rootLongDesc string = `Chronicle keeps the books for a long-running tabletop campaign played
with a language model at the table.

Every turn the model narrates and proposes a small state delta. Chronicle
folds the delta into the campaign's world state, writes a GM-only and a
public record of the turn, and files the turn under the active chapter.

Start a campaign and play:
  chronicle init --dir my-campaign
  chronicle play --dir my-campaign`

const rootShortDesc string = "Chronicle - campaign bookkeeping for LLM-run tables"

// LogFile is the name of the JSON log inside the configured logs directory.
const LogFile = "chronicle.log"

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chronicle",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringP("dir", "C", ".", "Campaign directory")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newPlayCmd())
	cmd.AddCommand(newTurnCmd())
	cmd.AddCommand(newSnapshotCmd())
	cmd.AddCommand(newSnapshotsCmd())
	cmd.AddCommand(newChapterCmd())
	cmd.AddCommand(newLoreCmd())

	return cmd
}

// campaignFlags are the configuration overrides a command accepts. Only
// the flags a command registers are bound.
type campaignFlags struct {
	keys []string

	model        string
	loreProvider string
	loreTarget   string
	embedTarget  string
	embedModel   string
	topK         int
	debug        bool
	repair       bool
	compress     bool
}

func (f *campaignFlags) register(cmd *cobra.Command, keys ...string) {
	f.keys = append(f.keys, keys...)
	for _, key := range keys {
		switch key {
		case config.FlagModel:
			config.AddStringFlag(cmd, config.Flags, key, &f.model)
		case config.FlagLoreProvider:
			config.AddStringFlag(cmd, config.Flags, key, &f.loreProvider)
		case config.FlagLoreTarget:
			config.AddStringFlag(cmd, config.Flags, key, &f.loreTarget)
		case config.FlagEmbedTarget:
			config.AddStringFlag(cmd, config.Flags, key, &f.embedTarget)
		case config.FlagEmbedModel:
			config.AddStringFlag(cmd, config.Flags, key, &f.embedModel)
		case config.FlagTopK:
			config.AddIntFlag(cmd, config.Flags, key, &f.topK)
		case config.FlagDebug:
			config.AddBoolFlag(cmd, config.Flags, key, &f.debug)
		case config.FlagRepair:
			config.AddBoolFlag(cmd, config.Flags, key, &f.repair)
		case config.FlagCompress:
			config.AddBoolFlag(cmd, config.Flags, key, &f.compress)
		}
	}
}

// load reads the campaign configuration with cmd's flags layered on top.
func (f *campaignFlags) load(cmd *cobra.Command) (*config.Config, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, fmt.Errorf("could not get dir flag: %w", err)
	}
	v, err := config.InitViper(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, f.keys)
	cfg, err := config.LoadConfig(v, dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger logs JSON to the campaign log file and, unless quiet, pretty
// text to stderr. The returned function closes the log file.
func newLogger(cfg *config.Config, stderr io.Writer, quiet bool) (*slog.Logger, func() error, error) {
	f, err := logger.OpenFile(filepath.Join(cfg.Paths.Logs, LogFile))
	if err != nil {
		return nil, nil, err
	}
	file := logger.New(logger.WithJSON(true), logger.WithDebug(true), logger.WithWriter(f))
	if quiet {
		return file, f.Close, nil
	}
	console := logger.New(logger.WithPretty(true), logger.WithDebug(cfg.Debug), logger.WithWriter(stderr))
	return logger.Multi(console, file), f.Close, nil
}
