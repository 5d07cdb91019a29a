package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tatianab/chronicle/internal/chapter"
	"github.com/tatianab/chronicle/internal/config"
	"github.com/tatianab/chronicle/internal/engine"
	"github.com/tatianab/chronicle/internal/tui"
)

const chapterLongDesc string = `Group turns into chapters.

While a chapter is active every recorded turn is added to it. Compiling
joins the public records of its turns into one document under the
chapters directory.

Examples:
  chronicle chapter start a1 "Arrival at Dawn"
  chronicle chapter status
  chronicle chapter compile
  chronicle chapter end`

const chapterShortDesc string = "Manage chapters"

func newChapterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chapter",
		Short: chapterShortDesc,
		Long:  chapterLongDesc,
	}

	cmd.AddCommand(newChapterSubCmd("start <slug> [title...]", "Start a chapter, abandoning any active one", cobra.MinimumNArgs(1),
		func(eng *engine.Engine, args []string) (string, error) {
			st, err := eng.ChapterStart(args[0], strings.Trim(strings.Join(args[1:], " "), `"`))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Chapter started: %s (%s)", st.Title, st.Slug), nil
		}))

	cmd.AddCommand(newChapterSubCmd("status", "Show the active chapter", cobra.NoArgs,
		func(eng *engine.Engine, _ []string) (string, error) {
			st, err := eng.ChapterStatus()
			if err != nil {
				return "", err
			}
			return tui.DescribeChapter(st), nil
		}))

	cmd.AddCommand(newChapterSubCmd("compile", "Compile the active chapter", cobra.NoArgs,
		func(eng *engine.Engine, _ []string) (string, error) {
			path, err := eng.ChapterCompile()
			if err != nil {
				return "", err
			}
			return "Chapter compiled: " + path, nil
		}))

	cmd.AddCommand(newChapterSubCmd("end", "Compile the active chapter and close it", cobra.NoArgs,
		func(eng *engine.Engine, _ []string) (string, error) {
			path, err := eng.ChapterEnd()
			if err != nil {
				return "", err
			}
			if path == "" {
				return "Chapter ended with no turns; nothing compiled.", nil
			}
			return "Chapter ended and compiled: " + path, nil
		}))

	return cmd
}

func newChapterSubCmd(use, short string, args cobra.PositionalArgs, run func(*engine.Engine, []string) (string, error)) *cobra.Command {
	flags := &campaignFlags{}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
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

			eng := engine.Open(cfg, log)
			defer eng.Close()

			msg, err := run(eng, args)
			if err != nil {
				if errors.Is(err, chapter.ErrNoActiveChapter) {
					return fmt.Errorf("%w; start one with \"chronicle chapter start <slug> [title]\"", err)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	flags.register(cmd, config.FlagDebug)
	return cmd
}
