package store

import (
	"context"
	"fmt"

	mydb "github.com/TimurManjosov/safetygate/internal/db"
)

// NewSource creates a catalog source of the given kind.
// location is the file path for "file" and the DSN for "postgres"; it is
// ignored otherwise.
func NewSource(ctx context.Context, kind, location string) (Source, error) {
	switch kind {
	case KindEmbedded, "":
		return EmbeddedSource{}, nil
	case KindMemory:
		return NewMemorySource(nil), nil
	case KindFile:
		if location == "" {
			return nil, fmt.Errorf("file source requires a path")
		}
		return NewFileSource(location), nil
	case KindPostgres:
		pool, err := mydb.NewPool(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		return NewPostgresSource(pool), nil
	default:
		return nil, fmt.Errorf("unsupported catalog source: %s", kind)
	}
}
