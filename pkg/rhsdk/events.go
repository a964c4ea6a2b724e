package rhsdk

import (
	"context"
	"time"
)

// EventType names a session lifecycle event.
type EventType string

const (
	EventLogin       EventType = "login"
	EventRefresh     EventType = "refresh"
	EventLogout      EventType = "logout"
	EventLoginFailed EventType = "login_failed"
)

// SessionEvent is published after every credential change. It never carries
// tokens or passwords.
type SessionEvent struct {
	Type        EventType `json:"type"`
	Username    string    `json:"username"`
	DeviceToken string    `json:"device_token"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	At          time.Time `json:"at"`
	Error       string    `json:"error,omitempty"`
}

// EventPublisher receives session lifecycle events. A publish error is logged
// and never fails the operation that produced the event.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, ev SessionEvent) error
}

func (m *SessionManager) publish(ctx context.Context, typ EventType, cause error) {
	if m.events == nil {
		return
	}

	m.mu.RLock()
	ev := SessionEvent{
		Type:        typ,
		Username:    m.username,
		DeviceToken: m.deviceToken,
		ExpiresAt:   m.expiresAt,
		At:          m.now().UTC(),
	}
	m.mu.RUnlock()

	if typ == EventLogout || typ == EventLoginFailed {
		ev.ExpiresAt = time.Time{}
	}
	if cause != nil {
		ev.Error = cause.Error()
	}

	if err := m.events.PublishSessionEvent(ctx, ev); err != nil {
		m.logger.Warn("failed to publish session event", "type", string(typ), "error", err)
	}
}
