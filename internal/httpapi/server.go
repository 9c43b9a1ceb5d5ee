package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/baziview/internal/bazi"
	"github.com/antoniostano/baziview/internal/chat"
	"github.com/antoniostano/baziview/internal/config"
	"github.com/antoniostano/baziview/internal/insights"
	"github.com/antoniostano/baziview/internal/observability"
	"github.com/antoniostano/baziview/internal/profile"
	"github.com/antoniostano/baziview/internal/protocol"
	"github.com/antoniostano/baziview/internal/session"
	"github.com/antoniostano/baziview/internal/transcript"
)

// Deps are the collaborators the API serves.
type Deps struct {
	Config   config.Config
	Sessions *session.Manager
	Profiles *profile.Service
	Readings bazi.ReadingSource
	// Chat is the template for every new conversation; only the context
	// differs between sessions.
	Chat     chat.Config
	Insights *insights.Generator
	Archive  *transcript.Archiver
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	profiles *profile.Service
	readings bazi.ReadingSource
	chatCfg  chat.Config
	insights *insights.Generator
	archive  *transcript.Archiver
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
	static   http.Handler
	now      func() time.Time
}

func New(d Deps) *Server {
	if d.Metrics == nil {
		d.Metrics = observability.NewMetricsWithRegistry(d.Config.MetricsNamespace, nil)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Readings == nil {
		d.Readings = bazi.StaticSource{}
	}
	cfg := d.Config
	return &Server{
		cfg:      cfg,
		sessions: d.Sessions,
		profiles: d.Profiles,
		readings: d.Readings,
		chatCfg:  d.Chat,
		insights: d.Insights,
		archive:  d.Archive,
		metrics:  d.Metrics,
		logger:   d.Logger,
		static:   newStaticHandler(),
		now:      time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/profiles", s.handleCreateProfile)
	r.Get("/v1/profiles", s.handleListProfiles)
	r.Get("/v1/profiles/{id}", s.handleGetProfile)

	r.Get("/v1/daily/{date}", s.handleDaily)
	r.Get("/v1/elements", s.handleElements)
	r.Get("/v1/elements/relationship", s.handleRelationship)

	r.Post("/v1/chat/session", s.handleCreateSession)
	r.Get("/v1/chat/session/ws", s.handleSessionWS)
	r.Post("/v1/chat/session/{id}/end", s.handleEndSession)
	r.Post("/v1/chat/session/{id}/messages", s.handleSendMessage)
	r.Put("/v1/chat/session/{id}/date", s.handleSetDate)
	r.Get("/v1/chat/session/{id}/history", s.handleHistory)
	r.Get("/v1/chat/session/{id}/archive", s.handleArchive)

	r.Post("/v1/insights/personality", s.handlePersonalityInsight)
	r.Post("/v1/insights/daily", s.handleDailyInsight)

	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"llm_provider":    s.providerName(),
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	readings := 0
	if src, ok := s.readings.(interface{ Len() int }); ok {
		readings = src.Len()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"llm_provider":   s.providerName(),
		"daily_readings": readings,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.UserMessage:
		return m.Type, true
	case protocol.SetDate:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantTextDelta:
		return m.Type, true
	case protocol.AssistantTurnEnd:
		return m.Type, true
	case protocol.ContextUpdated:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
