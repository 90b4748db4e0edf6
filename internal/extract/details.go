package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	runtimePattern  = regexp.MustCompile(`(\d+)\s*mins?\b`)
	altTitleHeading = regexp.MustCompile(`(?i)alternat(e|ive) titles?`)
)

// ReleaseYear parses the release-year link, or returns nil.
func ReleaseYear(doc *goquery.Document) *int {
	for _, sel := range []string{".releaseyear a", "small.number a"} {
		text := normSpace(doc.Find(sel).First().Text())
		if text == "" {
			continue
		}
		if year, err := strconv.Atoi(text); err == nil {
			return &year
		}
	}
	return nil
}

// Runtime reads minutes from the footer line, e.g. "142 mins More at IMDb".
func Runtime(doc *goquery.Document) *int {
	return ParseRuntime(doc.Find("p.text-link.text-footer").First().Text())
}

// ParseRuntime extracts the number in front of "min"/"mins".
func ParseRuntime(text string) *int {
	m := runtimePattern.FindStringSubmatch(normSpace(text))
	if m == nil {
		return nil
	}
	minutes, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &minutes
}

// Description returns the first paragraph of the synopsis.
func Description(doc *goquery.Document) *string {
	text := normSpace(doc.Find(".body-text.-prose.-hero").First().Find("p").First().Text())
	if text == "" {
		return nil
	}
	return &text
}

// AlternateTitles splits the block that follows the "Alternative Titles"
// heading on commas.
func AlternateTitles(doc *goquery.Document) []string {
	var raw string
	doc.Find("#tab-details h3").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if !altTitleHeading.MatchString(h.Text()) {
			return true
		}
		raw = h.Next().Text()
		return false
	})
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	return dedupe(strings.Split(raw, ","))
}
