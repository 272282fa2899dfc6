// Package palette provides color utilities for design-asset extraction:
// hex parsing, WCAG luminance/contrast, and similar-color merging for
// palettes pulled out of scraped stylesheets.
package palette

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// DefaultMergeThreshold is the Euclidean RGB distance below which two
// colors are considered visually similar.
const DefaultMergeThreshold = 30.0

// lightLuminanceCutoff splits light from dark backgrounds. Text on a
// background above this relative luminance should be dark.
const lightLuminanceCutoff = 0.179

var hexPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// RGB is an 8-bit-per-channel color.
type RGB struct {
	R, G, B uint8
}

// ParseHex parses a #rgb or #rrggbb string. The second return value is
// false for anything that doesn't match either form.
func ParseHex(s string) (RGB, bool) {
	if !hexPattern.MatchString(s) {
		return RGB{}, false
	}

	hex := s[1:]
	if len(hex) == 3 {
		hex = strings.Repeat(string(hex[0]), 2) +
			strings.Repeat(string(hex[1]), 2) +
			strings.Repeat(string(hex[2]), 2)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGB{}, false
	}

	return RGB{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}, true
}

// Hex returns the canonical lowercase #rrggbb form.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) colorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

// HSL returns hue [0,360), saturation and lightness [0,1].
func (c RGB) HSL() (h, s, l float64) {
	return c.colorful().Hsl()
}

// Distance is the Euclidean distance between two colors in 0-255 RGB
// space. Maximum possible value is ~441.67 (black to white).
func Distance(a, b RGB) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// Luminance returns the WCAG relative luminance of a color, in [0,1].
func Luminance(c RGB) float64 {
	return 0.2126*linearize(c.R) + 0.7152*linearize(c.G) + 0.0722*linearize(c.B)
}

func linearize(ch uint8) float64 {
	v := float64(ch) / 255.0
	if v <= 0.03928 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

// ContrastRatio returns the WCAG contrast ratio between two colors,
// in [1,21].
func ContrastRatio(a, b RGB) float64 {
	la, lb := Luminance(a), Luminance(b)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}

// IsLight reports whether a hex color reads as light. Invalid hex is
// treated as dark.
func IsLight(hex string) bool {
	c, ok := ParseHex(hex)
	if !ok {
		return false
	}
	return Luminance(c) > lightLuminanceCutoff
}

// MergeSimilar collapses a list of hex colors into a visually distinct
// subset. It walks the input in order: each not-yet-absorbed color is
// emitted as the representative of its cluster, and every later color
// within threshold of it is absorbed and never re-examined. Invalid hex
// values never match anything and always become their own
// representative. The output preserves first-occurrence order.
func MergeSimilar(colors []string, threshold float64) []string {
	if len(colors) == 0 {
		return nil
	}

	parsed := make([]RGB, len(colors))
	valid := make([]bool, len(colors))
	for i, s := range colors {
		parsed[i], valid[i] = ParseHex(s)
	}

	absorbed := make([]bool, len(colors))
	merged := make([]string, 0, len(colors))

	for i := range colors {
		if absorbed[i] {
			continue
		}
		merged = append(merged, colors[i])
		absorbed[i] = true

		if !valid[i] {
			continue
		}
		for j := i + 1; j < len(colors); j++ {
			if absorbed[j] || !valid[j] {
				continue
			}
			if Distance(parsed[i], parsed[j]) < threshold {
				absorbed[j] = true
			}
		}
	}

	return merged
}

// SortByHue orders valid hex colors by hue, then lightness. Invalid
// values sort to the end in their original relative order.
func SortByHue(colors []string) []string {
	return sortColors(colors, func(a, b RGB) bool {
		ha, _, la := a.HSL()
		hb, _, lb := b.HSL()
		if ha != hb {
			return ha < hb
		}
		return la < lb
	})
}

// SortByLightness orders valid hex colors dark to light. Invalid values
// sort to the end in their original relative order.
func SortByLightness(colors []string) []string {
	return sortColors(colors, func(a, b RGB) bool {
		return Luminance(a) < Luminance(b)
	})
}

func sortColors(colors []string, less func(a, b RGB) bool) []string {
	out := make([]string, len(colors))
	copy(out, colors)

	sort.SliceStable(out, func(i, j int) bool {
		ci, iok := ParseHex(out[i])
		cj, jok := ParseHex(out[j])
		if iok != jok {
			return iok
		}
		if !iok {
			return false
		}
		return less(ci, cj)
	})
	return out
}
