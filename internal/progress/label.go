package progress

import (
	"strings"
	"unicode/utf8"
)

// DefaultLabelWidth is the display width of item labels.
const DefaultLabelWidth = 30

// Label truncates or right-pads s to exactly width runes. Truncated labels
// end in an ellipsis.
func Label(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	n := utf8.RuneCountInString(s)
	if n == width {
		return s
	}
	if n < width {
		return s + strings.Repeat(" ", width-n)
	}
	runes := []rune(s)
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}
