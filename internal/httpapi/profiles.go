package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/baziview/internal/bazi"
	"github.com/antoniostano/baziview/internal/profile"
)

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var in bazi.ProfileInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := s.profiles.Create(r.Context(), in)
	if err != nil {
		var verr *bazi.ValidationError
		if errors.As(err, &verr) {
			s.metrics.ProfileRequests.WithLabelValues("create", "invalid").Inc()
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_profile", Field: verr.Field})
			return
		}
		s.metrics.ProfileRequests.WithLabelValues("create", "error").Inc()
		s.logger.Error("httpapi: create profile failed", "err", err)
		respondError(w, http.StatusInternalServerError, "profile_store_error", "could not save profile")
		return
	}
	s.metrics.ProfileRequests.WithLabelValues("create", "ok").Inc()
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	all, err := s.profiles.List(r.Context())
	if err != nil {
		s.metrics.ProfileRequests.WithLabelValues("list", "error").Inc()
		s.logger.Error("httpapi: list profiles failed", "err", err)
		respondError(w, http.StatusInternalServerError, "profile_store_error", "could not list profiles")
		return
	}
	if all == nil {
		all = []bazi.Profile{}
	}
	s.metrics.ProfileRequests.WithLabelValues("list", "ok").Inc()
	respondJSON(w, http.StatusOK, map[string]any{"profiles": all})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	p, ok := s.loadProfile(w, r, id)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// loadProfile writes the error response itself and reports whether p is usable.
func (s *Server) loadProfile(w http.ResponseWriter, r *http.Request, id string) (bazi.Profile, bool) {
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_profile_id", "missing profile id")
		return bazi.Profile{}, false
	}
	p, err := s.profiles.Get(r.Context(), id)
	if errors.Is(err, profile.ErrNotFound) {
		s.metrics.ProfileRequests.WithLabelValues("get", "not_found").Inc()
		respondError(w, http.StatusNotFound, "profile_not_found", err.Error())
		return bazi.Profile{}, false
	}
	if err != nil {
		s.metrics.ProfileRequests.WithLabelValues("get", "error").Inc()
		s.logger.Error("httpapi: load profile failed", "profile_id", id, "err", err)
		respondError(w, http.StatusInternalServerError, "profile_store_error", "could not load profile")
		return bazi.Profile{}, false
	}
	s.metrics.ProfileRequests.WithLabelValues("get", "ok").Inc()
	return p, true
}
