package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/TimurManjosov/safetygate/internal/catalog"
	"github.com/TimurManjosov/safetygate/internal/validation"
)

// handleCatalog handles GET /v1/safety/catalog. Browsers cache the document
// and revalidate with If-None-Match.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots()
	if snap.Catalog == nil {
		UnavailableError(w, r, "No safety catalog has been loaded")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == snap.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", snap.ETag)
	writeJSON(w, http.StatusOK, CatalogResponse{
		ETag:     snap.ETag,
		Version:  snap.Version,
		Source:   snap.Source,
		LoadedAt: snap.LoadedAt,
		Catalog:  snap.Catalog.Document(),
	})
}

// handleSlugs handles GET /v1/safety/slugs
func (s *Server) handleSlugs(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots()
	if snap.Catalog == nil {
		UnavailableError(w, r, "No safety catalog has been loaded")
		return
	}
	services := snap.Catalog.Services()
	if services == nil {
		services = []catalog.ServiceMapping{}
	}
	writeJSON(w, http.StatusOK, SlugsResponse{
		Version:  snap.Version,
		Slugs:    snap.Catalog.Slugs(),
		Services: services,
	})
}

// handleSlugRules handles GET /v1/safety/slugs/{slug}/rules
func (s *Server) handleSlugRules(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if result := validation.ValidateSlug("slug", slug); !result.Valid {
		BadRequestErrorWithFields(w, r, ErrCodeInvalidSlug, "Invalid slug", result.Errors)
		return
	}

	snap := s.snapshots()
	rs, err := snap.RulesForSlug(slug)
	if errors.Is(err, catalog.ErrUnknownSlug) {
		NotFoundError(w, r, ErrCodeUnknownSlug, "Slug '"+slug+"' has no safety rules")
		return
	}
	if err != nil {
		InternalError(w, r, "Failed to read rules")
		return
	}
	writeJSON(w, http.StatusOK, RulesResponse{
		Slug:    slug,
		Version: snap.Version,
		Rules:   rs,
	})
}
