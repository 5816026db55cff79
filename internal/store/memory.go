package store

import (
	"context"
	"sync"

	"github.com/TimurManjosov/safetygate/internal/catalog"
)

// MemorySource keeps a catalog document in process. Suitable for tests and
// for single-instance deployments seeded at startup.
type MemorySource struct {
	mu  sync.RWMutex
	doc *catalog.Document
}

// NewMemorySource creates a source, optionally seeded with doc.
func NewMemorySource(doc *catalog.Document) *MemorySource {
	m := &MemorySource{}
	if doc != nil {
		d := *doc
		m.doc = &d
	}
	return m
}

func (m *MemorySource) Load(ctx context.Context) (catalog.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.doc == nil {
		return catalog.Document{}, ErrNoCatalog
	}
	return *m.doc, nil
}

// Replace swaps the stored document.
func (m *MemorySource) Replace(ctx context.Context, doc catalog.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = &doc
	return nil
}

func (m *MemorySource) Name() string { return KindMemory }

func (m *MemorySource) Close() error { return nil }
