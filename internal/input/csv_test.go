package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/filmmeta/internal/crawler"
)

func TestReadTitleColumn(t *testing.T) {
	t.Parallel()

	in := "URL,Title\nhttps://letterboxd.com/film/heat-1995/,Heat\nhttps://letterboxd.com/film/ran/,Ran\n"
	targets, err := Read(strings.NewReader(in), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []crawler.ScrapeTarget{
		{SourceURL: "https://letterboxd.com/film/heat-1995/", HintTitle: "Heat"},
		{SourceURL: "https://letterboxd.com/film/ran/", HintTitle: "Ran"},
	}, targets)
}

func TestReadNameColumnAndCaseInsensitiveHeader(t *testing.T) {
	t.Parallel()

	in := "Date,name,Year,url\n2024-01-01,\"Good, the Bad\",1966,https://letterboxd.com/film/gbu/\n"
	targets, err := Read(strings.NewReader(in), 0, nil)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "Good, the Bad", targets[0].HintTitle)
	assert.Equal(t, "https://letterboxd.com/film/gbu/", targets[0].SourceURL)
}

func TestReadLetterboxdExportHeader(t *testing.T) {
	t.Parallel()

	in := "\ufeffDate,Name,Year,Letterboxd URI\n2024-01-01,Heat,1995,https://boxd.it/2a0k\n"
	targets, err := Read(strings.NewReader(in), 0, nil)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "https://boxd.it/2a0k", targets[0].SourceURL)
	assert.Equal(t, "Heat", targets[0].HintTitle)
}

func TestReadMissingURLColumn(t *testing.T) {
	t.Parallel()

	_, err := Read(strings.NewReader("Title,Year\nHeat,1995\n"), 0, nil)
	require.Error(t, err)
	assert.True(t, crawler.IsInputError(err))
}

func TestReadEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := Read(strings.NewReader(""), 0, nil)
	require.Error(t, err)
	assert.True(t, crawler.IsInputError(err))
}

func TestReadMalformedRow(t *testing.T) {
	t.Parallel()

	_, err := Read(strings.NewReader("URL,Title\n\"https://x,Heat\n"), 0, nil)
	require.Error(t, err)
	assert.True(t, crawler.IsInputError(err))
}

func TestReadSkipsBlankURLRows(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	in := "URL,Title\n,Nothing\nhttps://letterboxd.com/film/ran/,Ran\n   ,Spaces\n"
	targets, err := Read(strings.NewReader(in), 0, zap.New(core))
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "Ran", targets[0].HintTitle)
	assert.Equal(t, 2, logs.Len())
}

func TestReadLimit(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("url\n")
	for i := 0; i < 10; i++ {
		b.WriteString("https://letterboxd.com/film/x/\n")
	}
	targets, err := Read(strings.NewReader(b.String()), 3, nil)
	require.NoError(t, err)
	assert.Len(t, targets, 3)
	assert.Empty(t, targets[0].HintTitle)
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "films.csv")
	require.NoError(t, os.WriteFile(path, []byte("URL,Title\nhttps://letterboxd.com/film/ran/,Ran\n"), 0o600))

	targets, err := ReadFile(path, 0, nil)
	require.NoError(t, err)
	require.Len(t, targets, 1)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.csv"), 0, nil)
	require.Error(t, err)
	assert.True(t, crawler.IsInputError(err))
}
