package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/antoniostano/baziview/internal/insights"
	"github.com/antoniostano/baziview/internal/llm"
)

type insightRequest struct {
	ProfileID string `json:"profile_id"`
	Date      string `json:"date"`
}

func (s *Server) handlePersonalityInsight(w http.ResponseWriter, r *http.Request) {
	var req insightRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	p, ok := s.loadProfile(w, r, strings.TrimSpace(req.ProfileID))
	if !ok {
		return
	}
	in, err := s.insights.Personality(r.Context(), p)
	if err != nil {
		s.respondInsightError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, in)
}

func (s *Server) handleDailyInsight(w http.ResponseWriter, r *http.Request) {
	var req insightRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	key, reading, err := s.resolveReading(req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	p, ok := s.loadProfile(w, r, strings.TrimSpace(req.ProfileID))
	if !ok {
		return
	}
	in, err := s.insights.Daily(r.Context(), p, key, reading)
	if err != nil {
		s.respondInsightError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, in)
}

func (s *Server) respondInsightError(w http.ResponseWriter, err error) {
	if errors.Is(err, insights.ErrNoChart) {
		respondError(w, http.StatusUnprocessableEntity, "profile_without_chart", err.Error())
		return
	}
	s.metrics.ObserveGatewayError(s.providerName(), llm.ErrorCode(err))
	respondError(w, http.StatusBadGateway, "gateway_error", err.Error())
}
