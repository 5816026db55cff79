package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/TimurManjosov/safetygate/internal/audit"
	"github.com/TimurManjosov/safetygate/internal/engine"
	"github.com/TimurManjosov/safetygate/internal/evaluation"
	"github.com/TimurManjosov/safetygate/internal/rules"
	"github.com/TimurManjosov/safetygate/internal/validation"
)

// handleEvaluate handles POST /v1/safety/evaluate. The verdict is the body:
// a DECLINE is still a 200.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEvaluate(w, r, audit.StagePrecheck)
	if !ok {
		return
	}
	res := s.eval.Check(r.Context(), req)
	writeJSON(w, http.StatusOK, s.newEvaluateResponse(res))
}

// handleVerify handles POST /v1/checkout/verify. Anything but PASS is a 409
// so payment integrations can branch on the status alone.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEvaluate(w, r, audit.StageCheckout)
	if !ok {
		return
	}
	res, err := s.eval.Verify(r.Context(), req)
	resp := VerifyResponse{EvaluateResponse: s.newEvaluateResponse(res), Allowed: err == nil}
	if errors.Is(err, evaluation.ErrBlocked) {
		s.log.Info().Str("request_id", req.RequestID).Str("slug", res.Slug).
			Str("outcome", string(res.Outcome)).Msg("checkout blocked by safety check")
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	if err != nil {
		InternalError(w, r, "Safety verification failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) decodeEvaluate(w http.ResponseWriter, r *http.Request, stage audit.Stage) (evaluation.Request, bool) {
	var body EvaluateRequest
	if !decodeJSON(w, r, &body) {
		return evaluation.Request{}, false
	}

	body.Slug = strings.TrimSpace(body.Slug)
	body.ServiceType = strings.TrimSpace(body.ServiceType)
	body.Subtype = strings.TrimSpace(body.Subtype)

	result := validation.ValidateEvaluate(validation.EvaluateParams{
		Slug:        body.Slug,
		ServiceType: body.ServiceType,
		Subtype:     body.Subtype,
		Answers:     body.Answers,
	})
	if !result.Valid {
		ValidationError(w, r, "Validation failed", result.Errors)
		return evaluation.Request{}, false
	}

	return evaluation.Request{
		Stage:       stage,
		Slug:        body.Slug,
		ServiceType: body.ServiceType,
		Subtype:     body.Subtype,
		Answers:     rules.Answers(body.Answers),
		RequestID:   middleware.GetReqID(r.Context()),
	}, true
}

func (s *Server) newEvaluateResponse(res engine.Result) EvaluateResponse {
	return EvaluateResponse{
		Result:         res,
		CatalogVersion: s.snapshots().Version,
		EvaluatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
}
