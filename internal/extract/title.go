package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var siteSuffixes = []string{" • Letterboxd", " - Letterboxd"}

// Title tries the masthead heading, the film-title heading, og:title and
// finally <title>. The first non-blank candidate wins.
func Title(doc *goquery.Document) string {
	if t := normSpace(doc.Find("section.production-masthead h1.primaryname span.name").First().Text()); t != "" {
		return t
	}
	if t := normSpace(doc.Find("h1.headline-1.filmtitle").First().Text()); t != "" {
		return t
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if t := stripYearSuffix(normSpace(og)); t != "" {
			return t
		}
	}
	return titleFromHead(doc.Find("title").First().Text())
}

func titleFromHead(raw string) string {
	t := normSpace(raw)
	for _, suffix := range siteSuffixes {
		t = strings.ReplaceAll(t, suffix, "")
	}
	return stripYearSuffix(t)
}
