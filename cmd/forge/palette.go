package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgeapp/forge/internal/palette"
)

var paletteCmd = &cobra.Command{
	Use:   "palette",
	Short: "Work with color palettes",
}

var paletteMergeCmd = &cobra.Command{
	Use:   "merge [colors...]",
	Short: "Merge similar colors into representatives",
	Long: `Merge similar colors into representatives.

Colors are hex strings (#rrggbb or #rgb). When no arguments are given,
colors are read from stdin, one per line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		colors := args
		if len(colors) == 0 {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" {
					colors = append(colors, line)
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}
		}
		if len(colors) == 0 {
			return fmt.Errorf("no colors given")
		}

		threshold, _ := cmd.Flags().GetFloat64("threshold")
		byLightness, _ := cmd.Flags().GetBool("by-lightness")

		merged := palette.MergeSimilar(colors, threshold)
		if byLightness {
			merged = palette.SortByLightness(merged)
		} else {
			merged = palette.SortByHue(merged)
		}

		for _, hex := range merged {
			tone := "dark"
			if palette.IsLight(hex) {
				tone = "light"
			}
			fmt.Printf("%s\t%s\n", cyan(hex), tone)
		}
		return nil
	},
}

func init() {
	paletteMergeCmd.Flags().Float64("threshold", palette.DefaultMergeThreshold, "RGB distance below which colors merge")
	paletteMergeCmd.Flags().Bool("by-lightness", false, "sort results by lightness instead of hue")
	paletteCmd.AddCommand(paletteMergeCmd)
	rootCmd.AddCommand(paletteCmd)
}
