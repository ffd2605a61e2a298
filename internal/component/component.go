// Package component defines the lifecycle shared by the dashboard's widgets
// and a Runner that drives it. Widgets compose the hooks they need instead
// of inheriting them.
package component

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sort"
	"sync"
)

// Lifecycle is implemented by every renderable widget.
type Lifecycle interface {
	// BeforeRender prepares state needed by Render.
	BeforeRender(ctx context.Context) error

	// Render produces the widget's markup. It must not mutate shared state.
	Render(ctx context.Context) (template.HTML, error)

	// AfterRender runs once the markup has been produced.
	AfterRender(ctx context.Context) error

	// Destroy releases resources. It is called at most once.
	Destroy()
}

// Hooks provides no-op BeforeRender, AfterRender and Destroy. Embed it and
// implement only Render.
type Hooks struct{}

func (Hooks) BeforeRender(context.Context) error { return nil }
func (Hooks) AfterRender(context.Context) error  { return nil }
func (Hooks) Destroy()                           {}

// State is where a component is in its lifecycle.
type State int

const (
	StateNew State = iota
	StateRendered
	StateFailed
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRendered:
		return "rendered"
	case StateFailed:
		return "failed"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrDestroyed is returned when rendering a destroyed component.
var ErrDestroyed = errors.New("component destroyed")

// Runner invokes a component's hooks in order and tracks its state.
type Runner struct {
	name   string
	c      Lifecycle
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	renders int
}

// NewRunner wraps c. A nil logger discards output.
func NewRunner(name string, c Lifecycle, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{name: name, c: c, logger: logger}
}

// Name returns the component's registered name.
func (r *Runner) Name() string { return r.name }

// Component returns the wrapped component.
func (r *Runner) Component() Lifecycle { return r.c }

// Render runs BeforeRender, Render and AfterRender. The first failing hook
// stops the sequence and leaves the runner in StateFailed; a later Render
// may succeed.
func (r *Runner) Render(ctx context.Context) (template.HTML, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateDestroyed {
		return "", fmt.Errorf("render %s: %w", r.name, ErrDestroyed)
	}

	if err := r.c.BeforeRender(ctx); err != nil {
		return "", r.fail("before render", err)
	}
	html, err := r.c.Render(ctx)
	if err != nil {
		return "", r.fail("render", err)
	}
	if err := r.c.AfterRender(ctx); err != nil {
		return "", r.fail("after render", err)
	}

	r.state = StateRendered
	r.renders++
	r.logger.Debug("component rendered", "component", r.name, "renders", r.renders)
	return html, nil
}

func (r *Runner) fail(stage string, err error) error {
	r.state = StateFailed
	r.logger.Error("component failed", "component", r.name, "stage", stage, "error", err)
	return fmt.Errorf("%s %s: %w", stage, r.name, err)
}

// Destroy calls the component's Destroy once; further calls are no-ops.
func (r *Runner) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return
	}
	r.c.Destroy()
	r.state = StateDestroyed
	r.logger.Debug("component destroyed", "component", r.name)
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Renders returns how many renders have succeeded.
func (r *Runner) Renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders
}

// Registry holds named runners for lookup and enumeration.
type Registry struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	runners map[string]*Runner
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger, runners: make(map[string]*Runner)}
}

// Register wraps c in a Runner under name, destroying any runner it
// replaces.
func (reg *Registry) Register(name string, c Lifecycle) *Runner {
	r := NewRunner(name, c, reg.logger)
	reg.mu.Lock()
	old := reg.runners[name]
	reg.runners[name] = r
	reg.mu.Unlock()
	if old != nil {
		old.Destroy()
	}
	return r
}

// Get retrieves a runner by name.
func (reg *Registry) Get(name string) (*Runner, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.runners[name]
	return r, ok
}

// Remove destroys and forgets the runner under name. It reports whether
// one was registered.
func (reg *Registry) Remove(name string) bool {
	reg.mu.Lock()
	r, ok := reg.runners[name]
	delete(reg.runners, name)
	reg.mu.Unlock()
	if ok {
		r.Destroy()
	}
	return ok
}

// List returns the registered names sorted.
func (reg *Registry) List() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	names := make([]string, 0, len(reg.runners))
	for name := range reg.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DestroyAll destroys and forgets every runner.
func (reg *Registry) DestroyAll() {
	reg.mu.Lock()
	runners := reg.runners
	reg.runners = make(map[string]*Runner)
	reg.mu.Unlock()
	for _, r := range runners {
		r.Destroy()
	}
}
