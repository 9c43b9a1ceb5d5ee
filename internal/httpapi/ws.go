package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/baziview/internal/chat"
	"github.com/antoniostano/baziview/internal/protocol"
	"github.com/antoniostano/baziview/internal/session"
)

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.Status != session.StatusActive {
		respondError(w, http.StatusConflict, "session_ended", session.ErrEnded.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 16)
	outbound := make(chan any, 256)
	emit := func(msg any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- msg:
			return true
		}
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		s.runConnection(ctx, sessionID, inbound, emit)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	emit(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sessionID,
		Code:      "session_ready",
		Detail:    sess.Date,
	})

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		parsed, err := protocol.ParseClientMessage(data)
		if err == nil && sessionOf(parsed) != sessionID {
			err = errors.New("message session_id does not match connection")
		}
		if err != nil {
			select {
			case outbound <- errorEvent(sessionID, "invalid_client_message", "gateway", false, err.Error()):
			default:
				// Keep websocket writes single-threaded; drop if outbound queue is saturated.
			}
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}

		// Controls bypass the queue so they can reach a running turn.
		if ctrl, ok := parsed.(protocol.ClientControl); ok {
			s.handleControl(sessionID, ctrl, emit)
			continue
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-workerDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// runConnection handles queued messages one at a time until inbound closes.
func (s *Server) runConnection(ctx context.Context, sessionID string, inbound <-chan any, emit func(any) bool) {
	for msg := range inbound {
		if ctx.Err() != nil {
			continue
		}
		switch m := msg.(type) {
		case protocol.UserMessage:
			s.streamTurn(ctx, sessionID, m.Text, emit)
		case protocol.SetDate:
			update, err := s.setDate(ctx, sessionID, m.Date)
			if err != nil {
				emit(errorEvent(sessionID, "invalid_date", "context", false, err.Error()))
				continue
			}
			emit(protocol.ContextUpdated{
				Type:      protocol.TypeContextUpdated,
				SessionID: sessionID,
				Date:      update.Date,
				Found:     update.Found,
				Reading:   update.Formatted,
			})
		}
	}
}

func (s *Server) streamTurn(ctx context.Context, sessionID, text string, emit func(any) bool) {
	turnID := uuid.NewString()
	sink := make(chan string, 64)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for delta := range sink {
			emit(protocol.AssistantTextDelta{
				Type:      protocol.TypeAssistantTextDelta,
				SessionID: sessionID,
				TurnID:    turnID,
				TextDelta: delta,
			})
		}
	}()

	reply, err := s.exchange(ctx, sessionID, text, sink)
	close(sink)
	<-forwarded

	var inErr *chat.InputError
	switch {
	case errors.As(err, &inErr):
		emit(errorEvent(sessionID, "invalid_input", "chat", false, inErr.Error()))
	case errors.Is(err, context.Canceled):
		emit(turnEnd(sessionID, turnID, protocol.ReasonCancelled, ""))
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrEnded):
		emit(errorEvent(sessionID, "session_ended", "session", false, err.Error()))
	case err != nil:
		s.logger.Error("httpapi: ws turn failed", "session_id", sessionID, "err", err)
		emit(errorEvent(sessionID, "internal_error", "chat", true, err.Error()))
	case reply.Err != nil:
		emit(errorEvent(sessionID, "gateway_error", reply.Err.Provider, true, reply.Err.Detail()))
		emit(turnEnd(sessionID, turnID, protocol.ReasonGatewayError, reply.Text))
	default:
		emit(turnEnd(sessionID, turnID, protocol.ReasonCompleted, reply.Text))
	}
}

func (s *Server) handleControl(sessionID string, ctrl protocol.ClientControl, emit func(any) bool) {
	switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
	case "cancel", "interrupt":
		if err := s.sessions.Interrupt(sessionID); err != nil {
			emit(errorEvent(sessionID, "session_not_found", "session", false, err.Error()))
		}
	case "end":
		if _, err := s.sessions.End(sessionID); err != nil {
			emit(errorEvent(sessionID, "session_not_found", "session", false, err.Error()))
			return
		}
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		s.metrics.SessionEvents.WithLabelValues("ended").Inc()
		emit(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "session_ended"})
	default:
		emit(errorEvent(sessionID, "unknown_action", "gateway", false, "unsupported action "+ctrl.Action))
	}
}

func sessionOf(msg any) string {
	switch m := msg.(type) {
	case protocol.UserMessage:
		return m.SessionID
	case protocol.SetDate:
		return m.SessionID
	case protocol.ClientControl:
		return m.SessionID
	default:
		return ""
	}
}

func turnEnd(sessionID, turnID, reason, text string) protocol.AssistantTurnEnd {
	return protocol.AssistantTurnEnd{
		Type:      protocol.TypeAssistantTurnEnd,
		SessionID: sessionID,
		TurnID:    turnID,
		Reason:    reason,
		Text:      text,
	}
}

func errorEvent(sessionID, code, source string, retryable bool, detail string) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	}
}
