package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forgeapp/forge/internal/db"
	"github.com/forgeapp/forge/internal/delta"
)

var deltaCmd = &cobra.Command{
	Use:   "delta <project>",
	Short: "Estimate how much of the project actually changed",
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

		conn, err := db.New(db.WithPath(cfg.DBPath()))
		if err != nil {
			return err
		}
		defer conn.Close()

		svc, err := delta.NewService(conn)
		if err != nil {
			return err
		}

		analysis, err := svc.AnalyzeProject(cmd.Context(), p)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, f := range analysis.Files {
			if f.Status == delta.DeltaUnchanged {
				continue
			}
			detail := humanize.Bytes(uint64(f.BytesNeeded))
			if f.Status == delta.DeltaModified {
				detail = fmt.Sprintf("%d/%d chunks, %s", f.ChangedChunks, f.TotalChunks, detail)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.Status, f.Path, detail)
		}
		w.Flush()

		fmt.Printf("\n%s %s of %s (%.1f%% saved)\n",
			green("transfer needed:"),
			humanize.Bytes(uint64(analysis.BytesNeeded)),
			humanize.Bytes(uint64(analysis.TotalBytes)),
			analysis.SavingsPercent())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deltaCmd)
}
