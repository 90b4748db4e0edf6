package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/filmmeta/internal/clock/system"
	"github.com/JakeFAU/filmmeta/internal/crawler"
	"github.com/JakeFAU/filmmeta/internal/hash/sha256"
	pubmemory "github.com/JakeFAU/filmmeta/internal/publisher/memory"
	"github.com/JakeFAU/filmmeta/internal/storage/memory"
)

var runAt = time.Date(2024, 5, 1, 13, 45, 10, 0, time.UTC)

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("read-only file system")
}

type countingStore struct {
	*memory.BlobStore
	puts int
}

func (s *countingStore) PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	s.puts++
	return s.BlobStore.PutObject(ctx, path, contentType, r)
}

type brokenCatalog struct{}

func (brokenCatalog) CreateIfAbsent(context.Context, crawler.MediaRecord) (bool, error) {
	return false, errors.New("db down")
}

func intPtr(v int) *int { return &v }

func titled(titles ...string) []crawler.MediaRecord {
	out := make([]crawler.MediaRecord, len(titles))
	for i, title := range titles {
		out[i] = crawler.Degraded(crawler.ScrapeTarget{SourceURL: "https://letterboxd.com/film/" + title + "/", HintTitle: title})
	}
	return out
}

func TestFinalizeSortsByTitle(t *testing.T) {
	t.Parallel()

	in := titled("Zeta", "Alpha", "Mid")
	result := Finalize("run-1", in)

	got := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		got = append(got, rec.Title)
	}
	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, got)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "Zeta", in[0].Title, "input must not be reordered")
}

func TestFinalizeIsStable(t *testing.T) {
	t.Parallel()

	in := []crawler.MediaRecord{
		{URL: "u1", Title: "Heat"},
		{URL: "u2", Title: "Alien"},
		{URL: "u3", Title: "Heat"},
		{URL: "u4", Title: "Heat"},
	}
	result := Finalize("", in)
	urls := []string{}
	for _, rec := range result.Records {
		urls = append(urls, rec.URL)
	}
	assert.Equal(t, []string{"u2", "u1", "u3", "u4"}, urls)
}

func TestFinalizeIsByteWise(t *testing.T) {
	t.Parallel()

	result := Finalize("", titled("amélie", "Zodiac", "alien"))
	assert.Equal(t, "Zodiac", result.Records[0].Title)
	assert.Equal(t, "alien", result.Records[1].Title)
	assert.Equal(t, "amélie", result.Records[2].Title)
}

func TestFileName(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	clk := system.NewFixed(runAt)

	a, err := New(store, clk, Config{Prefix: "movie_collection_meta"})
	require.NoError(t, err)
	assert.Equal(t, "movie_collection_meta_2024-05-01.json", a.FileName(runAt))

	a, err = New(store, clk, Config{Prefix: "watchlist", UseDatetimeStamp: true, Format: FormatYAML})
	require.NoError(t, err)
	assert.Equal(t, "watchlist_2024-05-01_13-45.yaml", a.FileName(runAt))
}

func TestWriteJSONSingleObject(t *testing.T) {
	t.Parallel()

	store := &countingStore{BlobStore: memory.NewBlobStore()}
	a, err := New(store, system.NewFixed(runAt), Config{Prefix: "movie_collection_meta"})
	require.NoError(t, err)

	records := []crawler.MediaRecord{
		{
			URL:            "https://letterboxd.com/film/heat-1995/",
			Title:          "Heat",
			Genres:         []string{"Crime"},
			Crew:           crawler.Crew{{Role: "Director", Names: []string{"Michael Mann"}}},
			ReleaseYear:    intPtr(1995),
			RuntimeMinutes: intPtr(170),
		},
	}
	uri, err := a.Write(context.Background(), Finalize("run-1", records))
	require.NoError(t, err)
	assert.Equal(t, "memory://movie_collection_meta_2024-05-01.json", uri)
	assert.Equal(t, 1, store.puts)

	obj, ok := store.Get("movie_collection_meta_2024-05-01.json")
	require.True(t, ok)
	assert.Equal(t, "application/json", obj.ContentType)

	var decoded []crawler.MediaRecord
	require.NoError(t, json.Unmarshal(obj.Data, &decoded))
	assert.Equal(t, records, decoded)
}

func TestWriteJSONKeepsPunctuationReadable(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	a, err := New(store, system.NewFixed(runAt), Config{Prefix: "films"})
	require.NoError(t, err)

	records := []crawler.MediaRecord{{
		URL:         "https://letterboxd.com/film/fast-furious/",
		Title:       "Fast & Furious",
		Genres:      []string{"Action"},
		Crew:        crawler.Crew{{Role: "Writer", Names: []string{"Chris Morgan <uncredited>"}}},
		ReleaseYear: intPtr(2009),
	}}
	_, err = a.Write(context.Background(), Finalize("run-2", records))
	require.NoError(t, err)

	obj, ok := store.Get("films_2024-05-01.json")
	require.True(t, ok)
	out := string(obj.Data)
	assert.Contains(t, out, `"title": "Fast & Furious"`)
	assert.Contains(t, out, `Chris Morgan <uncredited>`)
	assert.NotContains(t, out, `\u0026`)
	assert.NotContains(t, out, `\u003c`)
	assert.True(t, strings.HasSuffix(out, "]\n"))
}

func TestWriteEmptyBatch(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	a, err := New(store, system.NewFixed(runAt), Config{Prefix: "empty"})
	require.NoError(t, err)

	_, err = a.Write(context.Background(), Finalize("run-0", nil))
	require.NoError(t, err)

	obj, ok := store.Get("empty_2024-05-01.json")
	require.True(t, ok)
	assert.JSONEq(t, "[]", string(obj.Data))
}

func TestWriteYAMLKeepsCrewOrder(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	a, err := New(store, system.NewFixed(runAt), Config{Prefix: "out", Format: FormatYAML})
	require.NoError(t, err)

	rec := crawler.Degraded(crawler.ScrapeTarget{SourceURL: "https://letterboxd.com/film/ran/", HintTitle: "Ran"})
	rec.Crew = crawler.Crew{
		{Role: "Writer", Names: []string{"Akira Kurosawa"}},
		{Role: "Director", Names: []string{"Akira Kurosawa"}},
	}
	_, err = a.Write(context.Background(), Finalize("run-1", []crawler.MediaRecord{rec}))
	require.NoError(t, err)

	obj, ok := store.Get("out_2024-05-01.yaml")
	require.True(t, ok)
	assert.Equal(t, "application/yaml", obj.ContentType)

	var doc []map[string]yaml.Node
	require.NoError(t, yaml.Unmarshal(obj.Data, &doc))
	require.Len(t, doc, 1)
	crew := doc[0]["crew"]
	require.Len(t, crew.Content, 4)
	assert.Equal(t, "Writer", crew.Content[0].Value)
	assert.Equal(t, "Director", crew.Content[2].Value)
}

func TestWriteFailureIsIOError(t *testing.T) {
	t.Parallel()

	a, err := New(failingStore{}, system.NewFixed(runAt), Config{Prefix: "out"})
	require.NoError(t, err)

	_, err = a.Write(context.Background(), Finalize("run-1", titled("Heat")))
	require.Error(t, err)
	assert.True(t, crawler.IsIOError(err))
	assert.Contains(t, err.Error(), "out_2024-05-01.json")
	assert.Contains(t, err.Error(), "read-only file system")
}

func TestWritePublishesNotification(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	hasher := sha256.New()
	store := memory.NewBlobStore()
	a, err := New(store, system.NewFixed(runAt), Config{Prefix: "out", Topic: "batches"},
		WithPublisher(pub), WithHasher(hasher))
	require.NoError(t, err)

	records := titled("Heat", "Ran")
	records[0].Genres = []string{"Crime"}
	uri, err := a.Write(context.Background(), Finalize("run-7", records))
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "batches", msgs[0].Topic)
	note, ok := msgs[0].Payload.(Notification)
	require.True(t, ok)

	obj, _ := store.Get("out_2024-05-01.json")
	digest, err := hasher.Hash(obj.Data)
	require.NoError(t, err)

	assert.Equal(t, Notification{
		RunID:       "run-7",
		URI:         uri,
		Format:      FormatJSON,
		Count:       2,
		Degraded:    1,
		SHA256:      digest,
		CompletedAt: runAt,
	}, note)
}

func TestWritePublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	pub.FailNext(errors.New("topic gone"))
	a, err := New(memory.NewBlobStore(), system.NewFixed(runAt), Config{Prefix: "out"}, WithPublisher(pub))
	require.NoError(t, err)

	_, err = a.Write(context.Background(), Finalize("run-1", titled("Heat")))
	require.NoError(t, err)
}

func TestWriteSendsExtractedRecordsToCatalog(t *testing.T) {
	t.Parallel()

	catalog := memory.NewCatalogStore()
	a, err := New(memory.NewBlobStore(), system.NewFixed(runAt), Config{Prefix: "out"}, WithCatalog(catalog))
	require.NoError(t, err)

	records := titled("Heat", "Ran", "Alien")
	records[0].ReleaseYear = intPtr(1995)
	records[2].Genres = []string{"Horror"}

	_, err = a.Write(context.Background(), Finalize("run-1", records))
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())
	_, ok := catalog.Get(records[1].URL)
	assert.False(t, ok, "degraded records stay out of the catalog")

	a, err = New(memory.NewBlobStore(), system.NewFixed(runAt), Config{Prefix: "out"}, WithCatalog(brokenCatalog{}))
	require.NoError(t, err)
	_, err = a.Write(context.Background(), Finalize("run-2", records))
	require.NoError(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	clk := system.NewFixed(runAt)
	store := memory.NewBlobStore()

	_, err := New(nil, clk, Config{Prefix: "x"})
	require.Error(t, err)
	_, err = New(store, nil, Config{Prefix: "x"})
	require.Error(t, err)
	_, err = New(store, clk, Config{Prefix: " "})
	require.Error(t, err)
	_, err = New(store, clk, Config{Prefix: "x", Format: "xml"})
	require.Error(t, err)
}
