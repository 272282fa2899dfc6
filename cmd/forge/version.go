package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeapp/forge/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", version.AppName, version.Detailed())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
