package store

import (
	"context"
	"errors"

	"github.com/TimurManjosov/safetygate/internal/catalog"
)

// Source kinds accepted by NewSource.
const (
	KindEmbedded = "embedded"
	KindFile     = "file"
	KindPostgres = "postgres"
	KindMemory   = "memory"
)

// ErrNoCatalog is returned when a source holds no catalog document yet.
var ErrNoCatalog = errors.New("no catalog stored")

// Source loads the rule catalog document from its backing storage.
// Implementations must be safe for concurrent use.
type Source interface {
	// Load returns the current catalog document. It does not validate it;
	// callers pass the result to catalog.Build.
	Load(ctx context.Context) (catalog.Document, error)

	// Name describes the source for logs, e.g. "file:/etc/safety/rules.yaml".
	Name() string

	// Close releases any resources held by the source.
	Close() error
}

// Writer is implemented by sources that can persist a whole catalog.
type Writer interface {
	Replace(ctx context.Context, doc catalog.Document) error
}

// LoadCatalog loads and validates the document held by src.
func LoadCatalog(ctx context.Context, src Source) (*catalog.Catalog, error) {
	doc, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Build(doc)
}
