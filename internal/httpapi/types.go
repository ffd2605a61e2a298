package httpapi

import (
	"time"

	"stockdash/internal/notify"
)

// NotificationJSON is a visible notification.
type NotificationJSON struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Level     string `json:"level"`
	Created   int64  `json:"created"` // unix ms
	ExpiresMS int64  `json:"expiresMs,omitempty"`
}

// ActivityJSON is one activity-log entry.
type ActivityJSON struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
	Level   string `json:"level"`
	Time    int64  `json:"time"` // unix ms
	Ago     string `json:"ago"`
}

// StatusResponse describes the ticker table and background jobs.
type StatusResponse struct {
	Source      string `json:"source"`
	LoadedAt    int64  `json:"loadedAt,omitempty"`
	Tickers     int    `json:"tickers"`
	Updated     int    `json:"updated"`
	Pending     int    `json:"pending"`
	NextRefresh int64  `json:"nextRefresh,omitempty"`
	Clients     int64  `json:"clients"`
	Fullscreen  string `json:"fullscreen,omitempty"`
}

// FullscreenResponse is the state after a fullscreen gesture.
type FullscreenResponse struct {
	ID         string `json:"id"`
	Fullscreen bool   `json:"fullscreen"`
	Current    string `json:"current,omitempty"`
	Height     int    `json:"height"`
}

// ActionResponse is the JSON reply of mutating actions called without
// htmx.
type ActionResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func notificationJSON(n notify.Notification) NotificationJSON {
	out := NotificationJSON{
		ID:      n.ID,
		Message: n.Message,
		Level:   string(n.Level),
		Created: n.Created.UnixMilli(),
	}
	if n.Duration > 0 {
		out.ExpiresMS = n.Created.Add(n.Duration).UnixMilli()
	}
	return out
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
