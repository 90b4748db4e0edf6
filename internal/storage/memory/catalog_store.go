package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/filmmeta/internal/crawler"
)

// CatalogStore keeps media records keyed by url. The first write for a url
// wins.
type CatalogStore struct {
	mu      sync.RWMutex
	records map[string]crawler.MediaRecord
	order   []string
}

// NewCatalogStore constructs an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{records: make(map[string]crawler.MediaRecord)}
}

// CreateIfAbsent stores rec unless its url is already present.
func (s *CatalogStore) CreateIfAbsent(ctx context.Context, rec crawler.MediaRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("create record: %w", err)
	}
	if rec.URL == "" {
		return false, fmt.Errorf("record url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.URL]; ok {
		return false, nil
	}
	s.records[rec.URL] = rec
	s.order = append(s.order, rec.URL)
	return true, nil
}

// Get returns the record stored for url.
func (s *CatalogStore) Get(url string) (crawler.MediaRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[url]
	return rec, ok
}

// Len reports how many records are stored.
func (s *CatalogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// URLs lists stored urls in insertion order.
func (s *CatalogStore) URLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}
