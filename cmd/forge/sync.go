package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forgeapp/forge/internal/sync"
	"github.com/forgeapp/forge/internal/transfer"
)

var syncCmd = &cobra.Command{
	Use:   "sync <project>",
	Short: "Deploy a project to its remote host",
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

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		runner := sync.NewRunner(sync.NewStore(), nil)

		err = runner.Run(cmd.Context(), p, dryRun, func(success bool, uploaded int) {
			if success {
				fmt.Printf("%s %d file(s) uploaded\n", green("sync complete:"), uploaded)
			}
		})
		if err != nil {
			return fmt.Errorf("%s %w", red("sync failed:"), err)
		}
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <project>",
	Short: "Show what a sync would change, without deploying",
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

		runner := sync.NewRunner(sync.NewStore(), nil)
		diff, err := runner.Preview(cmd.Context(), p)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()

		uploads := 0
		for _, c := range diff {
			if c.Status == transfer.StatusUnchanged {
				continue
			}
			if c.Uploadable() {
				uploads++
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.Status, c.Path, humanize.Bytes(uint64(c.LocalSize)))
		}
		fmt.Fprintf(w, "\n%d file(s) to upload, %d total in diff\n", uploads, len(diff))
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("dry-run", false, "analyze and report without transferring")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(previewCmd)
}
