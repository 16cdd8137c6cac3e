package ws

import (
	"time"

	"github.com/careerpath/internal/model"
)

type EventType string

const (
	// входящие
	EventCheck   EventType = "check"
	EventSignOut EventType = "sign_out"

	// исходящие
	EventSessionState       EventType = "session_state"
	EventCredentialsChanged EventType = "credentials_changed"
	EventSessionCleared     EventType = "session_cleared"
	EventError              EventType = "error"
)

// IncomingMessage is what the app instance sends to the server.
type IncomingMessage struct {
	Type EventType `json:"type"`
}

// OutgoingMessage is what the server sends to the app instance.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// SessionStatePayload answers mount and "check": the header state of this tab.
type SessionStatePayload struct {
	LoggedIn  bool           `json:"logged_in"`
	User      *model.Profile `json:"user,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// ChangePayload is broadcast to every tab of a scope when another tab writes a credential key.
type ChangePayload struct {
	Key     string `json:"key"`
	Removed bool   `json:"removed"`
}

// SessionClearedPayload tells a tab to drop session UI and navigate to Redirect.
type SessionClearedPayload struct {
	Redirect string `json:"redirect"`
}
