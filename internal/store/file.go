package store

import (
	"context"
	"fmt"
	"os"

	"github.com/TimurManjosov/safetygate/internal/catalog"
)

// FileSource reads a YAML or JSON catalog document from disk on every Load.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

func (f *FileSource) Load(ctx context.Context) (catalog.Document, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return catalog.Document{}, fmt.Errorf("read catalog file: %w", err)
	}
	doc, err := catalog.Parse(data)
	if err != nil {
		return catalog.Document{}, fmt.Errorf("%s: %w", f.path, err)
	}
	return doc, nil
}

func (f *FileSource) Name() string { return KindFile + ":" + f.path }

func (f *FileSource) Close() error { return nil }

// EmbeddedSource serves the catalog compiled into the binary.
type EmbeddedSource struct{}

func (EmbeddedSource) Load(ctx context.Context) (catalog.Document, error) {
	return catalog.Parse(catalog.DefaultYAML())
}

func (EmbeddedSource) Name() string { return KindEmbedded }

func (EmbeddedSource) Close() error { return nil }
