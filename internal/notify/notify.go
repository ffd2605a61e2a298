// Package notify provides the notification manager: transient messages
// shown to the user, an activity log persisted to SQLite, and pub/sub so
// connected browsers receive both as they happen.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockdash/internal/domain"
	"stockdash/internal/store"
)

// Default durations. An error stays up longer than the rest.
const (
	DefaultDuration = 4 * time.Second
	ErrorDuration   = 6 * time.Second
	DefaultMax      = 5
)

// Notification is one visible message.
type Notification struct {
	ID       string        `json:"id"`
	Message  string        `json:"message"`
	Level    domain.Level  `json:"level"`
	Created  time.Time     `json:"created"`
	Duration time.Duration `json:"duration"` // zero means it stays until removed
}

// Expired reports whether n has outlived its duration at now.
func (n Notification) Expired(now time.Time) bool {
	return n.Duration > 0 && !now.Before(n.Created.Add(n.Duration))
}

// Event is the wire format pushed to subscribers.
type Event struct {
	Type         string           `json:"type"` // "snapshot", "show", "remove", "clear", "activity"
	ID           string           `json:"id,omitempty"`
	Notification *Notification    `json:"notification,omitempty"`
	Activity     *domain.Activity `json:"activity,omitempty"`
	Active       []Notification   `json:"active,omitempty"` // snapshot only
}

// Options configures a Manager.
type Options struct {
	MaxVisible      int
	DefaultDuration time.Duration
	ErrorDuration   time.Duration
	ActivityLimit   int
}

// ShowOptions overrides per-message behaviour.
type ShowOptions struct {
	Duration   time.Duration
	Persistent bool
}

// Manager holds visible notifications and the activity log. It is created
// once at startup and passed to whoever needs it.
type Manager struct {
	opts  Options
	store store.ActivityStore
	log   *slog.Logger
	now   func() time.Time

	mu         sync.Mutex
	active     []Notification
	activities []domain.Activity // newest first
	timers     map[string]*time.Timer

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Event
}

// NewManager creates a Manager. st may be nil, in which case the activity
// log lives in memory only.
func NewManager(opts Options, st store.ActivityStore, log *slog.Logger) *Manager {
	if opts.MaxVisible <= 0 {
		opts.MaxVisible = DefaultMax
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultDuration
	}
	if opts.ErrorDuration <= 0 {
		opts.ErrorDuration = opts.DefaultDuration + 2*time.Second
	}
	if opts.ActivityLimit <= 0 {
		opts.ActivityLimit = 200
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		opts:   opts,
		store:  st,
		log:    log,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
		subs:   make(map[int]chan Event),
	}
}

// Show adds a notification, evicting the oldest when more than MaxVisible
// would be visible.
func (m *Manager) Show(message string, level domain.Level, o ShowOptions) Notification {
	if !level.Valid() {
		level = domain.LevelInfo
	}
	d := o.Duration
	switch {
	case o.Persistent:
		d = 0
	case d <= 0 && level == domain.LevelError:
		d = m.opts.ErrorDuration
	case d <= 0:
		d = m.opts.DefaultDuration
	}
	n := Notification{
		ID:       uuid.NewString(),
		Message:  message,
		Level:    level,
		Created:  m.now(),
		Duration: d,
	}

	m.mu.Lock()
	m.pruneLocked()
	var evicted []string
	for len(m.active) >= m.opts.MaxVisible {
		evicted = append(evicted, m.active[0].ID)
		m.stopTimerLocked(m.active[0].ID)
		m.active = m.active[1:]
	}
	m.active = append(m.active, n)
	if d > 0 {
		id := n.ID
		m.timers[id] = time.AfterFunc(d, func() { m.Remove(id) })
	}
	m.mu.Unlock()

	for _, id := range evicted {
		m.broadcast(Event{Type: "remove", ID: id})
	}
	m.broadcast(Event{Type: "show", Notification: &n})
	return n
}

func (m *Manager) Success(message string) Notification {
	return m.Show(message, domain.LevelSuccess, ShowOptions{})
}

func (m *Manager) Error(message string) Notification {
	return m.Show(message, domain.LevelError, ShowOptions{})
}

func (m *Manager) Warning(message string) Notification {
	return m.Show(message, domain.LevelWarning, ShowOptions{})
}

func (m *Manager) Info(message string) Notification {
	return m.Show(message, domain.LevelInfo, ShowOptions{})
}

// Remove dismisses one notification. It reports whether it was visible.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	idx := -1
	for i, n := range m.active {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx >= 0 {
		m.active = append(m.active[:idx], m.active[idx+1:]...)
		m.stopTimerLocked(id)
	}
	m.mu.Unlock()

	if idx < 0 {
		return false
	}
	m.broadcast(Event{Type: "remove", ID: id})
	return true
}

// RemoveAll dismisses every notification.
func (m *Manager) RemoveAll() {
	m.mu.Lock()
	for id := range m.timers {
		m.stopTimerLocked(id)
	}
	m.active = nil
	m.mu.Unlock()

	m.broadcast(Event{Type: "clear"})
}

// Active returns the visible notifications, oldest first.
func (m *Manager) Active() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	return append([]Notification(nil), m.active...)
}

// pruneLocked drops expired notifications whose timer has not fired yet.
func (m *Manager) pruneLocked() {
	now := m.now()
	kept := m.active[:0]
	for _, n := range m.active {
		if n.Expired(now) {
			m.stopTimerLocked(n.ID)
			continue
		}
		kept = append(kept, n)
	}
	m.active = kept
}

func (m *Manager) stopTimerLocked(id string) {
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
}

// ---------------------------------------------------------------------------
// Activity log
// ---------------------------------------------------------------------------

// Load fills the in-memory activity log from the store.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	list, err := m.store.ListActivities(ctx, m.opts.ActivityLimit)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.activities = list
	m.mu.Unlock()
	m.log.Info("loaded activity log", "entries", len(list))
	return nil
}

// Log records an activity. A store failure is logged and the entry is
// still kept in memory.
func (m *Manager) Log(ctx context.Context, message string, level domain.Level) domain.Activity {
	a := domain.Activity{Message: message, Level: level, Time: m.now()}
	if m.store != nil {
		saved, err := m.store.AppendActivity(ctx, a)
		if err != nil {
			m.log.Error("persisting activity", "error", err)
		} else {
			a = saved
			if err := m.store.TrimActivities(ctx, m.opts.ActivityLimit); err != nil {
				m.log.Warn("trimming activity log", "error", err)
			}
		}
	}

	m.mu.Lock()
	m.activities = append([]domain.Activity{a}, m.activities...)
	if len(m.activities) > m.opts.ActivityLimit {
		m.activities = m.activities[:m.opts.ActivityLimit]
	}
	m.mu.Unlock()

	m.broadcast(Event{Type: "activity", Activity: &a})
	return a
}

// Activities returns up to limit entries, newest first. A non-positive
// limit returns all of them.
func (m *Manager) Activities(limit int) []domain.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.activities
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]domain.Activity(nil), list...)
}

// ---------------------------------------------------------------------------
// Pub/sub
// ---------------------------------------------------------------------------

// Subscribe returns a channel that receives events, starting with a
// snapshot of the visible notifications. Slow consumers have events
// dropped.
func (m *Manager) Subscribe(bufSize int) (int, <-chan Event) {
	if bufSize < 1 {
		bufSize = 1
	}
	ch := make(chan Event, bufSize)
	ch <- Event{Type: "snapshot", Active: m.Active()}

	m.subsMu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = ch
	m.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Manager) Unsubscribe(id int) {
	m.subsMu.Lock()
	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
	m.subsMu.Unlock()
}

// broadcast sends an event to all subscribers without blocking.
func (m *Manager) broadcast(e Event) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
