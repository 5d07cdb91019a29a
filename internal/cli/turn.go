package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/tatianab/chronicle/internal/config"
	"github.com/tatianab/chronicle/internal/engine"
)

const turnLongDesc string = `Play a single turn and print the narration.

The party's action is taken from the arguments, or from stdin when there
are none. Only the narration is printed; engine notes and the state delta
go to the session record.

Examples:
  chronicle turn We follow the river upstream.
  echo "We make camp." | chronicle turn`

const turnShortDesc string = "Play a single turn"

func newTurnCmd() *cobra.Command {
	flags := &campaignFlags{}
	var plain bool

	cmd := &cobra.Command{
		Use:   "turn [action...]",
		Short: turnShortDesc,
		Long:  turnLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				input = string(data)
			}
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("no action given")
			}

			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			log, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer closeLog()

			eng, err := openPlayable(cmd, cfg, log)
			if err != nil {
				return err
			}
			defer eng.Close()

			res, err := eng.ProcessTurn(cmd.Context(), input)
			if res != nil {
				printNarration(cmd.OutOrStdout(), res.Display(), plain)
			}
			return err
		},
	}

	flags.register(cmd, playFlags...)
	cmd.Flags().BoolVar(&plain, "plain", false, "Print narration without markdown rendering")
	return cmd
}

// openPlayable opens an engine with a Gemini generator and lore.
func openPlayable(cmd *cobra.Command, cfg *config.Config, log *slog.Logger) (*engine.Engine, error) {
	genOpt, err := engine.GeminiOption(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	eng := engine.Open(cfg, log, genOpt)

	loreOpt, err := engine.LoreOption(cmd.Context(), cfg, log)
	if err != nil {
		_ = eng.Close()
		return nil, err
	}
	loreOpt(eng)
	return eng, nil
}

func printNarration(w io.Writer, text string, plain bool) {
	if !plain {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err == nil {
			if out, err := r.Render(text); err == nil {
				fmt.Fprint(w, out)
				return
			}
		}
	}
	fmt.Fprintln(w, text)
}
