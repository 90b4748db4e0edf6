package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	showAllPattern    = regexp.MustCompile(`(?i)^show all`)
	yearSuffixPattern = regexp.MustCompile(`\s*\(\d{4}\)\s*$`)
)

// normSpace collapses runs of whitespace, NBSP included, to single spaces.
func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isShowAll(text string) bool {
	return showAllPattern.MatchString(text)
}

func stripYearSuffix(s string) string {
	return strings.TrimSpace(yearSuffixPattern.ReplaceAllString(s, ""))
}

// dedupe trims, drops blanks and repeats, and keeps first-seen order.
// The result is never nil.
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = normSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// linkTexts maps a selection of links to visible text, skipping the
// "show all" overflow link.
func linkTexts(s *goquery.Selection) []string {
	var out []string
	s.Each(func(_ int, a *goquery.Selection) {
		text := normSpace(a.Text())
		if text == "" || isShowAll(text) {
			return
		}
		out = append(out, text)
	})
	return out
}
