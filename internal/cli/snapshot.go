package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tatianab/chronicle/internal/config"
	"github.com/tatianab/chronicle/internal/engine"
)

const snapshotLongDesc string = `Copy the current world state into a timestamped, labelled snapshot.

Snapshots are never overwritten or deleted. The label is reduced to letters,
digits, '-' and '_'; it defaults to "snapshot".

Examples:
  chronicle snapshot
  chronicle snapshot before-the-siege --compress`

const snapshotShortDesc string = "Snapshot the world state"

func newSnapshotCmd() *cobra.Command {
	flags := &campaignFlags{}

	cmd := &cobra.Command{
		Use:   "snapshot [label]",
		Short: snapshotShortDesc,
		Long:  snapshotLongDesc,
		Args:  cobra.MaximumNArgs(1),
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

			label := ""
			if len(args) == 1 {
				label = args[0]
			}
			eng := engine.Open(cfg, log)
			defer eng.Close()

			path, err := eng.Snapshot(label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot saved: %s\n", path)
			return nil
		},
	}

	flags.register(cmd, config.FlagDebug, config.FlagCompress)
	return cmd
}

const snapshotsShortDesc string = "List world state snapshots"

func newSnapshotsCmd() *cobra.Command {
	flags := &campaignFlags{}

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: snapshotsShortDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			snaps, err := eng.Snapshots()
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No snapshots.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TAKEN\tLABEL\tFILE")
			for _, s := range snaps {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.TakenAt.Format("2006-01-02 15:04:05"), s.Label, s.Name)
			}
			return w.Flush()
		},
	}

	flags.register(cmd, config.FlagDebug)
	return cmd
}
