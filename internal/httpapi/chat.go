package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/baziview/internal/bazi"
	"github.com/antoniostano/baziview/internal/chat"
	"github.com/antoniostano/baziview/internal/llm"
	"github.com/antoniostano/baziview/internal/session"
	"github.com/antoniostano/baziview/internal/transcript"
)

func (s *Server) providerName() string {
	return llm.Name(s.chatCfg.Gateway)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
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

	conv := chat.NewConversation(s.chatCfg, chat.Context{Profile: p, Reading: reading})
	sess := s.sessions.Create(p.ID, key, conv)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	s.logger.Info("httpapi: session created", "session_id", sess.ID, "profile_id", p.ID, "date", key, "reading_found", reading != nil)

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		ProfileID:       sess.ProfileID,
		Status:          sess.Status,
		Date:            sess.Date,
		ReadingFound:    reading != nil,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Error     string `json:"error,omitempty"`
	TurnCount int    `json:"turn_count"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	reply, err := s.exchange(r.Context(), id, req.Text, nil)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}

	resp := messageResponse{
		SessionID: id,
		Reply:     reply.Text,
		ElapsedMS: reply.Elapsed.Milliseconds(),
	}
	if reply.Err != nil {
		resp.Error = reply.Err.Detail()
	}
	if sess, err := s.sessions.Get(id); err == nil {
		resp.TurnCount = sess.TurnCount
	}
	respondJSON(w, http.StatusOK, resp)
}

// exchange runs one chat turn on a session and archives it when the
// completion succeeded. sink may be nil.
func (s *Server) exchange(ctx context.Context, sessionID, text string, sink chan<- string) (chat.Reply, error) {
	var reply chat.Reply
	err := s.sessions.Exchange(ctx, sessionID, func(ctx context.Context, conv *chat.Conversation) error {
		var err error
		reply, err = conv.RespondStream(ctx, text, sink)
		if err != nil || reply.Err != nil {
			return err
		}
		history := conv.History()
		if len(history) < 2 {
			return nil
		}
		// The turn already happened; a cancelled caller must not lose it.
		archiveCtx := context.WithoutCancel(ctx)
		if aerr := s.archive.Archive(archiveCtx, sessionID, conv.Context().Profile.ID, history[len(history)-2:]...); aerr != nil {
			s.logger.Warn("httpapi: archive turn failed", "session_id", sessionID, "err", aerr)
		}
		return nil
	})
	return reply, err
}

func (s *Server) respondExchangeError(w http.ResponseWriter, err error) {
	var inErr *chat.InputError
	switch {
	case errors.As(err, &inErr):
		respondError(w, http.StatusBadRequest, "invalid_input", inErr.Error())
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, session.ErrEnded):
		respondError(w, http.StatusConflict, "session_ended", err.Error())
	case errors.Is(err, context.Canceled):
		respondError(w, http.StatusConflict, "turn_cancelled", "the turn was cancelled")
	default:
		s.logger.Error("httpapi: exchange failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

type dateRequest struct {
	Date string `json:"date"`
}

func (s *Server) handleSetDate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	update, err := s.setDate(r.Context(), id, req.Date)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrEnded) {
			s.respondExchangeError(w, err)
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, update)
}

type contextUpdate struct {
	SessionID string             `json:"session_id"`
	Date      string             `json:"date"`
	Found     bool               `json:"found"`
	Reading   *bazi.DailyReading `json:"reading,omitempty"`
	Formatted string             `json:"formatted"`
}

// setDate swaps the daily reading of a session. The chat memory is kept.
// It queues behind a running turn so the prompt of that turn stays stable.
func (s *Server) setDate(ctx context.Context, sessionID, raw string) (contextUpdate, error) {
	key, reading, err := s.resolveReading(raw)
	if err != nil {
		return contextUpdate{}, err
	}
	err = s.sessions.Exchange(ctx, sessionID, func(_ context.Context, conv *chat.Conversation) error {
		conv.UpdateContext(reading)
		return nil
	})
	if err != nil {
		return contextUpdate{}, err
	}
	if err := s.sessions.SetDate(sessionID, key); err != nil {
		return contextUpdate{}, err
	}
	s.metrics.SessionEvents.WithLabelValues("date_changed").Inc()
	return contextUpdate{
		SessionID: sessionID,
		Date:      key,
		Found:     reading != nil,
		Reading:   reading,
		Formatted: bazi.FormatReading(reading),
	}, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var turns []chat.Turn
	err := s.sessions.View(id, func(conv *chat.Conversation) {
		turns = conv.History()
	})
	if err != nil {
		// Ended sessions no longer keep their memory; serve the archive.
		records, aerr := s.archive.Turns(r.Context(), id)
		if aerr != nil {
			s.logger.Error("httpapi: read archive failed", "session_id", id, "err", aerr)
			respondError(w, http.StatusInternalServerError, "archive_error", "could not read archive")
			return
		}
		if errors.Is(err, session.ErrNotFound) && len(records) == 0 {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		turns = turnsFromRecords(records)
	}
	if turns == nil {
		turns = []chat.Turn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "turns": turns})
}

func turnsFromRecords(records []transcript.Record) []chat.Turn {
	turns := make([]chat.Turn, 0, len(records))
	for _, rec := range records {
		turns = append(turns, chat.Turn{Role: chat.Role(rec.Role), Text: rec.Content})
	}
	return turns
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	records, err := s.archive.Turns(r.Context(), id)
	if err != nil {
		s.logger.Error("httpapi: read archive failed", "session_id", id, "err", err)
		respondError(w, http.StatusInternalServerError, "archive_error", "could not read archive")
		return
	}
	// Pruned sessions stay readable as long as their archive exists.
	if len(records) == 0 {
		if _, err := s.sessions.Get(id); err != nil {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
	}
	if records == nil {
		records = []transcript.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "records": records})
}
