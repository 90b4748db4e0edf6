package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves one URL and returns the parsed document. Implementations
// fail with *FetchError and never retry.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Document, error)
}

// Processor turns one target into exactly one record and never fails.
type Processor interface {
	Process(ctx context.Context, target ScrapeTarget) MediaRecord
}

// BlobStore writes output artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes batch notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// CatalogStore is the downstream persistence collaborator. Records are keyed
// by URL; existing rows are left untouched.
type CatalogStore interface {
	CreateIfAbsent(ctx context.Context, record MediaRecord) (bool, error)
}

// Hasher computes digests for output integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
