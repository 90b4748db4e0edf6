// Package extract pulls film metadata out of parsed Letterboxd-style pages.
//
// Every function is pure and total: a missing element yields an empty
// string, an empty slice or a nil pointer, never an error. Callers pass a
// non-nil document; Record tolerates nil.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/filmmeta/internal/crawler"
)

// Record composes every extractor into a MediaRecord for target. The URL is
// always target.SourceURL and a blank extracted title falls back to the
// target's hint title.
func Record(doc *goquery.Document, target crawler.ScrapeTarget) crawler.MediaRecord {
	if doc == nil {
		return crawler.Degraded(target)
	}
	title := Title(doc)
	if strings.TrimSpace(title) == "" {
		title = target.HintTitle
	}
	return crawler.MediaRecord{
		URL:             target.SourceURL,
		Title:           title,
		Description:     Description(doc),
		AlternateTitles: AlternateTitles(doc),
		Genres:          Genres(doc),
		Themes:          Themes(doc),
		Countries:       Countries(doc),
		Cast:            Cast(doc),
		Crew:            Crew(doc),
		ReleaseYear:     ReleaseYear(doc),
		RuntimeMinutes:  Runtime(doc),
	}
}
