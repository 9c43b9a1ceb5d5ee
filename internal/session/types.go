package session

import "time"

// CreateRequest defines payload for creating a new chat session.
type CreateRequest struct {
	ProfileID string `json:"profile_id"`
	// Date selects the daily reading. Empty means today.
	Date string `json:"date"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	ProfileID       string    `json:"profile_id"`
	Status          Status    `json:"status"`
	Date            string    `json:"date"`
	ReadingFound    bool      `json:"reading_found"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
