package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/forgeapp/forge/internal/config"
	"github.com/forgeapp/forge/internal/db"
	"github.com/forgeapp/forge/internal/history"
)

func openHistory(cfg *config.Config) (*history.Service, *sqlx.DB, error) {
	conn, err := db.New(db.WithPath(cfg.DBPath()))
	if err != nil {
		return nil, nil, err
	}
	svc, err := history.NewService(conn, cfg.BackupDir())
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return svc, conn, nil
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage project snapshots",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <project>",
	Short: "Capture the project's local files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		p, err := cfg.Project(args[0])
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		svc, conn, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		desc, _ := cmd.Flags().GetString("message")
		snap, err := svc.Create(cmd.Context(), p, desc)
		if err != nil {
			return err
		}

		fmt.Printf("%s %s (%d files, %s)\n",
			green("snapshot created:"), snap.ID, snap.FileCount, humanize.Bytes(uint64(snap.TotalSize)))
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list <project>",
	Short: "List the project's snapshots, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		p, err := cfg.Project(args[0])
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		svc, conn, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		snaps, err := svc.List(cmd.Context(), p.ID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()
		for _, s := range snaps {
			fmt.Fprintf(w, "%s\t%s\t%d files\t%s\t%s\n",
				s.ID, humanize.Time(s.CreatedAt), s.FileCount,
				humanize.Bytes(uint64(s.TotalSize)), s.Description)
		}
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <project> <snapshot-id>",
	Short: "Copy a snapshot's files back over the local tree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		p, err := cfg.Project(args[0])
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		svc, conn, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		restored, err := svc.Restore(cmd.Context(), p, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s %d file(s)\n", green("restored:"), restored)
		return nil
	},
}

var snapshotDiffCmd = &cobra.Command{
	Use:   "diff <old-id> <new-id>",
	Short: "Compare two snapshots by content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		svc, conn, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		diff, err := svc.Compare(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		for _, p := range diff.Added {
			fmt.Printf("%s %s\n", green("+"), p)
		}
		for _, p := range diff.Removed {
			fmt.Printf("%s %s\n", red("-"), p)
		}
		for _, p := range diff.Changed {
			fmt.Printf("%s %s\n", cyan("~"), p)
		}
		return nil
	},
}

func init() {
	snapshotCreateCmd.Flags().StringP("message", "m", "", "snapshot description")
	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotListCmd, snapshotRestoreCmd, snapshotDiffCmd)
	rootCmd.AddCommand(snapshotCmd)
}
