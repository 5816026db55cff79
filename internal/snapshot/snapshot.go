// Package snapshot publishes the active rule catalog to request handlers.
// Readers never block: the catalog is swapped behind an atomic pointer.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/TimurManjosov/safetygate/internal/catalog"
	"github.com/TimurManjosov/safetygate/internal/rules"
)

// Snapshot is one immutable, published catalog together with its ETag.
type Snapshot struct {
	Catalog  *catalog.Catalog `json:"-"`
	ETag     string           `json:"etag"`
	Version  string           `json:"version"`
	Source   string           `json:"source"`
	LoadedAt time.Time        `json:"loadedAt"`
}

var current atomic.Pointer[Snapshot]

// Load returns the published snapshot. Before the first Update it returns an
// empty snapshot whose Catalog is nil, which evaluates every slug as unknown.
func Load() *Snapshot {
	if s := current.Load(); s != nil {
		return s
	}
	return &Snapshot{LoadedAt: time.Now().UTC()}
}

// Update publishes s.
func Update(s *Snapshot) { current.Store(s) }

// Build wraps c in a snapshot. The weak ETag is the sha256 of the canonical
// JSON document, so two processes serving the same catalog agree on it.
func Build(c *catalog.Catalog, source string) *Snapshot {
	blob, _ := json.Marshal(c.Document())
	sum := sha256.Sum256(blob)
	return &Snapshot{
		Catalog:  c,
		ETag:     `W/"` + hex.EncodeToString(sum[:]) + `"`,
		Version:  c.Version(),
		Source:   source,
		LoadedAt: time.Now().UTC(),
	}
}

// RulesForSlug lets a snapshot act as the engine's rule source.
func (s *Snapshot) RulesForSlug(slug string) ([]rules.SafetyRule, error) {
	return s.Catalog.RulesForSlug(slug)
}
