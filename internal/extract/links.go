package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link path fragments for the category-linked fields.
const (
	GenrePath     = "/genre/"
	ThemePath     = "/theme/"
	MiniThemePath = "/mini-theme/"
	CountryPath   = "/country/"
)

// slugLinks returns the text of every a.text-slug whose href contains
// pathPart, deduplicated in page order and without "show all" links.
func slugLinks(doc *goquery.Document, pathPart string) []string {
	links := doc.Find("a.text-slug").FilterFunction(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		return strings.Contains(href, pathPart)
	})
	return dedupe(linkTexts(links))
}

// Genres lists /genre/ links.
func Genres(doc *goquery.Document) []string {
	return slugLinks(doc, GenrePath)
}

// Themes merges /theme/ and /mini-theme/ links.
func Themes(doc *goquery.Document) []string {
	merged := append(slugLinks(doc, ThemePath), slugLinks(doc, MiniThemePath)...)
	return dedupe(merged)
}

// Countries lists /country/ links.
func Countries(doc *goquery.Document) []string {
	return slugLinks(doc, CountryPath)
}

// Cast lists the names in the cast tab.
func Cast(doc *goquery.Document) []string {
	return dedupe(linkTexts(doc.Find("#tab-cast a.text-slug")))
}
