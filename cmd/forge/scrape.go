package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgeapp/forge/internal/palette"
	"github.com/forgeapp/forge/internal/scraper"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Extract a site's color palette and typography",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		url := args[0]
		refresh, _ := cmd.Flags().GetBool("refresh")
		cache := scraper.NewCache(filepath.Join(cfg.DataDir, "scrape-cache"))

		var result *scraper.Result
		if !refresh {
			if cached, ok := cache.Get(url); ok {
				fmt.Println(cyan("(cached)"))
				result = cached
			}
		}

		if result == nil {
			result, err = scraper.New().Scrape(cmd.Context(), url, func(page int, pageURL string) {
				fmt.Printf("  [%d] %s\n", page, pageURL)
			})
			if err != nil {
				return err
			}
			if err := cache.Put(url, result); err != nil {
				return err
			}
		}

		fmt.Printf("\n%s %s (%d pages)\n", green("scraped:"), result.Title, result.Pages)

		fmt.Println("\ncolors:")
		for _, hex := range result.Colors {
			tone := "dark"
			if palette.IsLight(hex) {
				tone = "light"
			}
			fmt.Printf("  %s (%s)\n", hex, tone)
		}

		fmt.Println("\nfonts:")
		for _, f := range result.Fonts {
			fmt.Printf("  %s\n", f)
		}
		return nil
	},
}

func init() {
	scrapeCmd.Flags().Bool("refresh", false, "bypass the scrape cache")
	rootCmd.AddCommand(scrapeCmd)
}
