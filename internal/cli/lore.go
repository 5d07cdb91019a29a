package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tatianab/chronicle/internal/config"
	"github.com/tatianab/chronicle/internal/engine"
	"github.com/tatianab/chronicle/internal/lore"
)

const loreLongDesc string = `Manage campaign lore.

Lore is markdown under the lore root. Each "## " section of at least 50
characters becomes one chunk, tagged with its type (the first directory
under the root), file name and section title. Turns retrieve the closest
chunks as canon for the game master.

Examples:
  chronicle lore ingest --lore-provider chromem
  chronicle lore query "who rules the river towns" -k 3`

const loreShortDesc string = "Ingest and search campaign lore"

// errLoreDisabled is returned when a lore command runs with the none
// provider.
var errLoreDisabled = errors.New(`lore is disabled; set lore.provider or pass --lore-provider`)

func newLoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lore",
		Short: loreShortDesc,
		Long:  loreLongDesc,
	}
	cmd.AddCommand(newLoreIngestCmd())
	cmd.AddCommand(newLoreQueryCmd())
	return cmd
}

var loreFlags = []string{
	config.FlagDebug,
	config.FlagLoreProvider,
	config.FlagLoreTarget,
	config.FlagEmbedTarget,
	config.FlagEmbedModel,
}

func newLoreIngestCmd() *cobra.Command {
	flags := &campaignFlags{}
	var root string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest lore markdown into the lore store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if root == "" {
				root = cfg.Lore.Root
			}
			log, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer closeLog()

			store, err := engine.OpenLore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			if store == nil {
				return errLoreDisabled
			}
			defer store.Close()

			n, err := lore.Ingest(cmd.Context(), store, root)
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", root, err)
			}
			total, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			log.Info("lore ingested", "root", root, "chunks", n, "total", total)
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks from %s (%d in store)\n", n, root, total)
			return nil
		},
	}

	flags.register(cmd, loreFlags...)
	cmd.Flags().StringVar(&root, "root", "", "Lore directory (default: lore.root from the config)")
	return cmd
}

func newLoreQueryCmd() *cobra.Command {
	flags := &campaignFlags{}

	cmd := &cobra.Command{
		Use:   "query <text...>",
		Short: "Show the lore a turn with this text would retrieve",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			log, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer closeLog()

			store, err := engine.OpenLore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			if store == nil {
				return errLoreDisabled
			}
			defer store.Close()

			canon, err := lore.NewRetriever(store).Retrieve(cmd.Context(), strings.Join(args, " "), cfg.Lore.TopK)
			if err != nil {
				return err
			}
			if canon == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No lore found.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), canon)
			return nil
		},
	}

	flags.register(cmd, append(loreFlags, config.FlagTopK)...)
	return cmd
}
