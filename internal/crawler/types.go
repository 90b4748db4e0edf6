package crawler

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ScrapeTarget is one input unit: the page to fetch plus a fallback title.
type ScrapeTarget struct {
	SourceURL string `json:"url"`
	HintTitle string `json:"title"`
}

// Document is a fetched and parsed page. It is owned by the worker that
// fetched it and dropped once extraction finishes.
type Document struct {
	URL        string
	StatusCode int
	Duration   time.Duration
	Bytes      int
	Doc        *goquery.Document
}

// MediaRecord is the structured metadata extracted for one film page.
type MediaRecord struct {
	URL             string   `json:"url" yaml:"url"`
	Title           string   `json:"title" yaml:"title"`
	Description     *string  `json:"description,omitempty" yaml:"description,omitempty"`
	AlternateTitles []string `json:"alternate_titles" yaml:"alternate_titles"`
	Genres          []string `json:"genres" yaml:"genres"`
	Themes          []string `json:"themes" yaml:"themes"`
	Countries       []string `json:"countries" yaml:"countries"`
	Cast            []string `json:"cast" yaml:"cast"`
	Crew            Crew     `json:"crew" yaml:"crew"`
	ReleaseYear     *int     `json:"release_year,omitempty" yaml:"release_year,omitempty"`
	RuntimeMinutes  *int     `json:"runtime_minutes,omitempty" yaml:"runtime_minutes,omitempty"`
}

// Degraded builds the minimal record emitted when a target cannot be fetched
// or extracted. Only URL and Title are populated.
func Degraded(target ScrapeTarget) MediaRecord {
	return MediaRecord{
		URL:             target.SourceURL,
		Title:           target.HintTitle,
		AlternateTitles: []string{},
		Genres:          []string{},
		Themes:          []string{},
		Countries:       []string{},
		Cast:            []string{},
		Crew:            Crew{},
	}
}

// IsDegraded reports whether only URL and Title carry data.
func (r MediaRecord) IsDegraded() bool {
	return r.Description == nil &&
		len(r.AlternateTitles) == 0 &&
		len(r.Genres) == 0 &&
		len(r.Themes) == 0 &&
		len(r.Countries) == 0 &&
		len(r.Cast) == 0 &&
		len(r.Crew) == 0 &&
		r.ReleaseYear == nil &&
		r.RuntimeMinutes == nil
}

// BatchResult is the title-ordered output of one batch run.
type BatchResult struct {
	RunID   string
	Records []MediaRecord
}

// Outcome labels how a single target finished.
type Outcome string

// Outcome values reported by workers.
const (
	OutcomeDone     Outcome = "done"
	OutcomeDegraded Outcome = "degraded"
)
