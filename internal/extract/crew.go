package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/filmmeta/internal/crawler"
)

// Crew reads role headings in the crew tab. Members are the a.text-slug links
// of the element right after each heading; roles with no members are left out.
func Crew(doc *goquery.Document) crawler.Crew {
	crew := crawler.Crew{}
	index := map[string]int{}

	doc.Find("#tab-crew h3").Each(func(_ int, h *goquery.Selection) {
		role := normSpace(h.Find("span.crewrole.-full").First().Text())
		if role == "" {
			role = normSpace(h.Text())
		}
		if role == "" {
			return
		}
		names := dedupe(linkTexts(h.Next().Find("a.text-slug")))
		if len(names) == 0 {
			return
		}
		if i, ok := index[role]; ok {
			crew[i].Names = dedupe(append(crew[i].Names, names...))
			return
		}
		index[role] = len(crew)
		crew = append(crew, crawler.CrewRole{Role: role, Names: names})
	})
	return crew
}
