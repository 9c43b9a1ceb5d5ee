package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/baziview/internal/chat"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session ended")
)

// Session is a snapshot of one chat session.
type Session struct {
	ID                string    `json:"session_id"`
	ProfileID         string    `json:"profile_id"`
	Status            Status    `json:"status"`
	Date              string    `json:"date"`
	ActiveTurnID      string    `json:"active_turn_id"`
	TurnCount         int       `json:"turn_count"`
	InterruptionCount int       `json:"interruption_count"`
	StartedAt         time.Time `json:"started_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

type entry struct {
	info Session
	// conv is nil once the session has ended.
	conv *chat.Conversation

	// turnMu serializes every access to conv.
	turnMu     sync.Mutex
	cancelTurn context.CancelFunc
}

// release drops the conversation. It waits for a running exchange to return.
func (e *entry) release() {
	e.turnMu.Lock()
	e.conv = nil
	e.turnMu.Unlock()
}

// Manager owns the live sessions and their conversations.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*entry
	inactivityTimeout time.Duration
	endedRetention    time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*entry),
		inactivityTimeout: inactivityTimeout,
		endedRetention:    inactivityTimeout,
	}
}

func (m *Manager) InactivityTimeout() time.Duration { return m.inactivityTimeout }

// SetEndedRetention sets how long an ended session stays known to Get
// before the janitor forgets it. Its conversation is dropped at end time.
func (m *Manager) SetEndedRetention(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.endedRetention = d
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create registers a session around conv.
func (m *Manager) Create(profileID, date string, conv *chat.Conversation) *Session {
	now := time.Now().UTC()
	e := &entry{
		info: Session{
			ID:             uuid.NewString(),
			ProfileID:      profileID,
			Date:           date,
			Status:         StatusActive,
			StartedAt:      now,
			LastActivityAt: now,
		},
		conv: conv,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[e.info.ID] = e
	return clone(&e.info)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(&e.info), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.info.LastActivityAt = time.Now().UTC()
	return nil
}

// Exchange runs fn with exclusive access to the session's conversation.
// Calls on the same session queue behind each other. The context passed to
// fn is cancelled by Interrupt or End.
func (m *Manager) Exchange(ctx context.Context, sessionID string, fn func(ctx context.Context, conv *chat.Conversation) error) error {
	e, err := m.activeEntry(sessionID)
	if err != nil {
		return err
	}

	e.turnMu.Lock()
	defer e.turnMu.Unlock()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if e.info.Status != StatusActive {
		m.mu.Unlock()
		return ErrEnded
	}
	e.info.ActiveTurnID = uuid.NewString()
	e.info.LastActivityAt = time.Now().UTC()
	e.cancelTurn = cancel
	m.mu.Unlock()

	err = fn(turnCtx, e.conv)

	m.mu.Lock()
	e.info.ActiveTurnID = ""
	e.cancelTurn = nil
	e.info.TurnCount = e.conv.Len()
	e.info.LastActivityAt = time.Now().UTC()
	m.mu.Unlock()
	return err
}

// View runs fn with read access to the conversation. It waits for a running
// exchange to finish. Ended sessions no longer hold a conversation and
// return ErrEnded.
func (m *Manager) View(sessionID string, fn func(conv *chat.Conversation)) error {
	e, err := m.activeEntry(sessionID)
	if err != nil {
		return err
	}
	e.turnMu.Lock()
	defer e.turnMu.Unlock()
	if e.conv == nil {
		return ErrEnded
	}
	fn(e.conv)
	return nil
}

// SetDate records the active date after the caller swapped the reading.
func (m *Manager) SetDate(sessionID, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.info.Date = date
	e.info.LastActivityAt = time.Now().UTC()
	return nil
}

// Interrupt cancels the running exchange, if any.
func (m *Manager) Interrupt(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if e.cancelTurn != nil {
		e.cancelTurn()
		e.info.InterruptionCount++
	}
	e.info.LastActivityAt = time.Now().UTC()
	return nil
}

// End cancels the running exchange and drops the session's conversation.
// The session stays visible to Get as ended until the janitor prunes it.
func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	m.endLocked(e, time.Now().UTC())
	ended := clone(&e.info)
	m.mu.Unlock()

	e.release()
	return ended, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.sessions {
		if e.info.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) activeEntry(sessionID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if e.info.Status != StatusActive {
		return nil, ErrEnded
	}
	return e, nil
}

func (m *Manager) endLocked(e *entry, now time.Time) {
	if e.cancelTurn != nil {
		e.cancelTurn()
	}
	e.info.Status = StatusEnded
	e.info.ActiveTurnID = ""
	e.info.LastActivityAt = now
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var (
		expired  []*Session
		released []*entry
	)

	m.mu.Lock()
	for id, e := range m.sessions {
		if e.info.Status == StatusEnded {
			if now.Sub(e.info.LastActivityAt) >= m.endedRetention {
				delete(m.sessions, id)
			}
			continue
		}
		if e.info.ActiveTurnID != "" {
			continue
		}
		if now.Sub(e.info.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		m.endLocked(e, now)
		expired = append(expired, clone(&e.info))
		released = append(released, e)
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, e := range released {
		e.release()
	}
	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
