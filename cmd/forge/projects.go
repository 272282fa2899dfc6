package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List configured projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()
		for i := range cfg.Projects {
			p := &cfg.Projects[i]
			schedule := "-"
			if p.Schedule.Enabled {
				schedule = p.Schedule.Expr
			}
			fmt.Fprintf(w, "%s\t%s\t%s@%s\t%s\t%s\n",
				cyan(p.ID), p.Name, p.Remote.Username, p.Remote.Addr(),
				p.Remote.Protocol, schedule)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
}
