// Package input reads batch scrape targets from CSV.
package input

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/filmmeta/internal/crawler"
)

var (
	urlColumns   = []string{"url", "letterboxd uri", "uri"}
	titleColumns = []string{"title", "name"}
)

// ReadFile opens path and parses it with Read.
func ReadFile(path string, limit int, logger *zap.Logger) ([]crawler.ScrapeTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &crawler.InputError{Msg: "open input " + path, Err: err}
	}
	defer func() {
		_ = f.Close()
	}()
	return Read(f, limit, logger)
}

// Read parses a CSV with a header row. A URL column is required (matched
// case-insensitively); Title or Name supplies the hint title. Rows with a
// blank URL are skipped. limit > 0 caps the number of targets returned.
func Read(r io.Reader, limit int, logger *zap.Logger) ([]crawler.ScrapeTarget, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	br := bufio.NewReader(r)
	if bom, _ := br.Peek(3); len(bom) == 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, crawler.NewInputError("input is empty, expected a header row")
	}
	if err != nil {
		return nil, &crawler.InputError{Msg: "read header", Err: err}
	}

	urlIdx := columnIndex(header, urlColumns)
	if urlIdx < 0 {
		return nil, crawler.NewInputError("missing URL column in header %q", strings.Join(header, ","))
	}
	titleIdx := columnIndex(header, titleColumns)

	var targets []crawler.ScrapeTarget
	for line := 2; ; line++ {
		if limit > 0 && len(targets) >= limit {
			break
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &crawler.InputError{Msg: fmt.Sprintf("read row %d", line), Err: err}
		}
		url := field(row, urlIdx)
		if url == "" {
			logger.Warn("skipping row without url", zap.Int("line", line))
			continue
		}
		targets = append(targets, crawler.ScrapeTarget{
			SourceURL: url,
			HintTitle: field(row, titleIdx),
		})
	}
	return targets, nil
}

// columnIndex returns the index of the first header matching any name, in
// order of preference.
func columnIndex(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
