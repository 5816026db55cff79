package api

import (
	"time"

	"github.com/TimurManjosov/safetygate/internal/catalog"
	"github.com/TimurManjosov/safetygate/internal/engine"
	"github.com/TimurManjosov/safetygate/internal/rules"
)

// EvaluateRequest is the request payload for POST /v1/safety/evaluate and
// POST /v1/checkout/verify. Either Slug or ServiceType is required.
type EvaluateRequest struct {
	Slug        string         `json:"slug,omitempty"`
	ServiceType string         `json:"serviceType,omitempty"`
	Subtype     string         `json:"subtype,omitempty"`
	Answers     map[string]any `json:"answers"`
}

// EvaluateResponse is the engine result plus the catalog it ran against.
type EvaluateResponse struct {
	engine.Result
	CatalogVersion string `json:"catalogVersion"`
	EvaluatedAt    string `json:"evaluatedAt"`
}

// VerifyResponse is returned by the checkout backstop. Allowed is false
// whenever the status code is 409.
type VerifyResponse struct {
	EvaluateResponse
	Allowed bool `json:"allowed"`
}

// CatalogResponse is the payload for GET /v1/safety/catalog.
type CatalogResponse struct {
	ETag     string           `json:"etag"`
	Version  string           `json:"version"`
	Source   string           `json:"source"`
	LoadedAt time.Time        `json:"loadedAt"`
	Catalog  catalog.Document `json:"catalog"`
}

// SlugsResponse is the payload for GET /v1/safety/slugs.
type SlugsResponse struct {
	Version  string                   `json:"version"`
	Slugs    []string                 `json:"slugs"`
	Services []catalog.ServiceMapping `json:"services"`
}

// RulesResponse is the payload for GET /v1/safety/slugs/{slug}/rules.
type RulesResponse struct {
	Slug    string             `json:"slug"`
	Version string             `json:"version"`
	Rules   []rules.SafetyRule `json:"rules"`
}
