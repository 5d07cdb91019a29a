package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tatianab/chronicle/internal/config"
	"github.com/tatianab/chronicle/internal/logger"
	"github.com/tatianab/chronicle/internal/models"
)

const initLongDesc string = `Initialize a campaign directory.

Writes a default chronicle.yaml, creates the state, session, public journal,
chapter and lore directories, and the initial world state document. An
existing campaign is left untouched.

Examples:
  chronicle init
  chronicle init --dir my-campaign`

const initShortDesc string = "Initialize a campaign directory"

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := cmd.Flags().GetString("dir")
			if err != nil {
				return fmt.Errorf("could not get dir flag: %w", err)
			}
			return runInit(cmd, dir)
		},
	}
}

func runInit(cmd *cobra.Command, dir string) error {
	out := cmd.OutOrStdout()

	if config.Exists(dir) {
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
		return nil
	}
	path, err := config.WriteDefault(dir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	for _, d := range []string{
		cfg.Paths.Snapshots,
		cfg.Paths.Sessions,
		cfg.Paths.Public,
		cfg.Paths.Chapters,
		cfg.Paths.Logs,
		cfg.Lore.Root,
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}

	store := models.NewStore(cfg.Paths.State, cfg.Paths.Snapshots, models.WithLogger(logger.Nop()))
	if _, err := store.Load(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Initialized campaign: %s\n", cfg.Dir)
	fmt.Fprintf(out, "  config: %s\n", path)
	fmt.Fprintf(out, "  state:  %s\n", cfg.Paths.State)
	fmt.Fprintf(out, "  lore:   %s\n", cfg.Lore.Root)
	return nil
}
