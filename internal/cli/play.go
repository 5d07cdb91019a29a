package cli

import (
	"github.com/spf13/cobra"

	"github.com/tatianab/chronicle/internal/config"
	"github.com/tatianab/chronicle/internal/tui"
)

const playLongDesc string = `Run the interactive table.

Type what the party does and the game master narrates. Table commands:
  /snapshot [label]                 copy the world state
  /chapter start <slug> [title]     start a chapter
  /chapter status|compile|end       manage the active chapter
  /quit                             leave the table

Logs go to the campaign log file only, so they never cover the table.

Examples:
  chronicle play
  chronicle play --model gemini-2.5-pro --lore-provider chromem`

const playShortDesc string = "Run the interactive table"

func newPlayCmd() *cobra.Command {
	flags := &campaignFlags{}

	cmd := &cobra.Command{
		Use:   "play",
		Short: playShortDesc,
		Long:  playLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			log, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer closeLog()

			eng, err := openPlayable(cmd, cfg, log)
			if err != nil {
				return err
			}
			defer eng.Close()

			return tui.Run(eng, log)
		},
	}

	flags.register(cmd, playFlags...)
	return cmd
}

// playFlags are accepted by every command that plays turns.
var playFlags = []string{
	config.FlagModel,
	config.FlagDebug,
	config.FlagLoreProvider,
	config.FlagLoreTarget,
	config.FlagTopK,
	config.FlagRepair,
	config.FlagEmbedTarget,
	config.FlagEmbedModel,
}
