package catalog

import (
	_ "embed"
	"sync"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Load(defaultCatalogYAML)
})

// Default returns the compiled-in clinical rule set. It panics if the embedded
// document does not validate, which the package tests guard against.
func Default() *Catalog {
	c, err := loadDefault()
	if err != nil {
		panic("catalog: embedded default catalog is invalid: " + err.Error())
	}
	return c
}

// DefaultYAML returns the raw embedded document.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultCatalogYAML))
	copy(out, defaultCatalogYAML)
	return out
}
