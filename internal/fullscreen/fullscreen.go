// Package fullscreen tracks which dashboard element, if any, is shown
// fullscreen, and restores its original height when it leaves.
package fullscreen

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// DefaultHeight is the height given to an element without an explicit
// fullscreen height.
const DefaultHeight = 900

// ErrUnknownElement is returned for ids that were never registered.
var ErrUnknownElement = errors.New("element not registered")

// Resizable is an element whose height follows fullscreen state.
type Resizable interface {
	Height() int
	SetHeight(h int)
}

// EventType names a state change.
type EventType string

const (
	EventEnter  EventType = "enter"
	EventExit   EventType = "exit"
	EventChange EventType = "change"
)

// Event is passed to callbacks.
type Event struct {
	Type       EventType
	ID         string
	Fullscreen bool
}

// Manager owns the fullscreen state of registered elements. At most one
// element is fullscreen at a time.
type Manager struct {
	log *slog.Logger

	mu        sync.Mutex
	elements  map[string]Resizable
	heights   map[string]int // fullscreen height per element
	current   string
	saved     int // original height of current
	callbacks map[EventType][]func(Event)
}

// NewManager creates an empty Manager.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		log:       log,
		elements:  make(map[string]Resizable),
		heights:   make(map[string]int),
		callbacks: make(map[EventType][]func(Event)),
	}
}

// Register makes id available for fullscreen. height is its fullscreen
// height; zero means DefaultHeight.
func (m *Manager) Register(id string, el Resizable, height int) {
	if height <= 0 {
		height = DefaultHeight
	}
	m.mu.Lock()
	m.elements[id] = el
	m.heights[id] = height
	m.mu.Unlock()
}

// Unregister forgets id, leaving fullscreen first if it is current.
func (m *Manager) Unregister(id string) {
	if m.Current() == id {
		m.Exit()
	}
	m.mu.Lock()
	delete(m.elements, id)
	delete(m.heights, id)
	m.mu.Unlock()
}

// On registers fn for events of type t.
func (m *Manager) On(t EventType, fn func(Event)) {
	m.mu.Lock()
	m.callbacks[t] = append(m.callbacks[t], fn)
	m.mu.Unlock()
}

// Enter puts id in fullscreen, first leaving any other fullscreen element.
func (m *Manager) Enter(id string) error {
	m.mu.Lock()
	el, ok := m.elements[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("enter fullscreen %q: %w", id, ErrUnknownElement)
	}
	if m.current == id {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.Exit()

	m.mu.Lock()
	m.saved = el.Height()
	m.current = id
	el.SetHeight(m.heights[id])
	m.mu.Unlock()

	m.log.Debug("entered fullscreen", "id", id)
	m.emit(Event{Type: EventEnter, ID: id, Fullscreen: true})
	m.emit(Event{Type: EventChange, ID: id, Fullscreen: true})
	return nil
}

// Exit leaves fullscreen and restores the element's height. It reports
// whether anything was fullscreen.
func (m *Manager) Exit() bool {
	m.mu.Lock()
	id := m.current
	if id == "" {
		m.mu.Unlock()
		return false
	}
	if el, ok := m.elements[id]; ok {
		el.SetHeight(m.saved)
	}
	m.current = ""
	m.saved = 0
	m.mu.Unlock()

	m.log.Debug("exited fullscreen", "id", id)
	m.emit(Event{Type: EventExit, ID: id})
	m.emit(Event{Type: EventChange, ID: id})
	return true
}

// Toggle leaves fullscreen when id is current, and enters it otherwise.
func (m *Manager) Toggle(id string) error {
	if m.Current() == id {
		m.Exit()
		return nil
	}
	return m.Enter(id)
}

// IsFullscreen reports whether any element is fullscreen.
func (m *Manager) IsFullscreen() bool {
	return m.Current() != ""
}

// Current returns the fullscreen element id, or "".
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) emit(e Event) {
	m.mu.Lock()
	fns := slices.Clone(m.callbacks[e.Type])
	m.mu.Unlock()
	for _, fn := range fns {
		m.call(fn, e)
	}
}

// call runs one callback; a panicking callback is logged and skipped.
func (m *Manager) call(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("fullscreen callback panicked", "event", string(e.Type), "panic", r)
		}
	}()
	fn(e)
}
