package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/baziview/internal/bazi"
)

type dailyResponse struct {
	Date      string             `json:"date"`
	Found     bool               `json:"found"`
	Reading   *bazi.DailyReading `json:"reading,omitempty"`
	Formatted string             `json:"formatted"`
}

// resolveReading turns a user-supplied date (empty means today) into a key
// and the reading for it. A missing reading is not an error.
func (s *Server) resolveReading(raw string) (string, *bazi.DailyReading, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "today"
	}
	t, err := bazi.ParseDateRelative(raw, s.now())
	if err != nil {
		return "", nil, err
	}
	key := t.Format(bazi.DateKeyLayout)
	r, ok := s.readings.Lookup(key)
	if !ok {
		return key, nil, nil
	}
	return key, &r, nil
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	key, reading, err := s.resolveReading(chi.URLParam(r, "date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, dailyResponse{
		Date:      key,
		Found:     reading != nil,
		Reading:   reading,
		Formatted: bazi.FormatReading(reading),
	})
}

func (s *Server) handleElements(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"elements":   bazi.Elements,
		"properties": bazi.Properties(),
	})
}

func (s *Server) handleRelationship(w http.ResponseWriter, r *http.Request) {
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")
	rel := bazi.Relationship(a, b)
	respondJSON(w, http.StatusOK, map[string]any{
		"a":            a,
		"b":            b,
		"known":        rel != bazi.UnknownRelationship,
		"relationship": rel,
	})
}
