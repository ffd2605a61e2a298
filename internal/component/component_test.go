package component

import (
	"context"
	"errors"
	"html/template"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	calls     []string
	renderErr error
}

func (r *recorder) BeforeRender(context.Context) error {
	r.calls = append(r.calls, "before")
	return nil
}

func (r *recorder) Render(context.Context) (template.HTML, error) {
	r.calls = append(r.calls, "render")
	if r.renderErr != nil {
		return "", r.renderErr
	}
	return "<p>ok</p>", nil
}

func (r *recorder) AfterRender(context.Context) error {
	r.calls = append(r.calls, "after")
	return nil
}

func (r *recorder) Destroy() {
	r.calls = append(r.calls, "destroy")
}

type plain struct{ Hooks }

func (plain) Render(context.Context) (template.HTML, error) { return "plain", nil }

func TestRunnerOrder(t *testing.T) {
	rec := &recorder{}
	r := NewRunner("rec", rec, nil)

	html, err := r.Render(context.Background())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if html != "<p>ok</p>" {
		t.Errorf("html = %q", html)
	}
	r.Destroy()
	r.Destroy()

	if diff := cmp.Diff([]string{"before", "render", "after", "destroy"}, rec.calls); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}
	if r.State() != StateDestroyed {
		t.Errorf("State() = %v, want destroyed", r.State())
	}
	if _, err := r.Render(context.Background()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Render after Destroy = %v, want ErrDestroyed", err)
	}
}

func TestRunnerFailure(t *testing.T) {
	rec := &recorder{renderErr: errors.New("no data")}
	r := NewRunner("rec", rec, nil)

	if _, err := r.Render(context.Background()); err == nil {
		t.Fatal("Render should fail")
	}
	if r.State() != StateFailed || r.Renders() != 0 {
		t.Errorf("state = %v renders = %d", r.State(), r.Renders())
	}
	if diff := cmp.Diff([]string{"before", "render"}, rec.calls); diff != "" {
		t.Errorf("AfterRender ran after a failed Render (-want +got):\n%s", diff)
	}

	rec.renderErr = nil
	if _, err := r.Render(context.Background()); err != nil {
		t.Fatalf("retry Render: %v", err)
	}
	if r.State() != StateRendered || r.Renders() != 1 {
		t.Errorf("state = %v renders = %d", r.State(), r.Renders())
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(nil)
	first := &recorder{}
	reg.Register("table", first)
	reg.Register("chart", plain{})
	reg.Register("table", &recorder{})

	if diff := cmp.Diff([]string{"chart", "table"}, reg.List()); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
	if len(first.calls) != 1 || first.calls[0] != "destroy" {
		t.Errorf("replaced runner not destroyed: %v", first.calls)
	}

	r, ok := reg.Get("chart")
	if !ok {
		t.Fatal("Get(chart) not found")
	}
	if html, _ := r.Render(context.Background()); html != "plain" {
		t.Errorf("chart html = %q", html)
	}

	second := &recorder{}
	reg.Register("preview", second)
	if !reg.Remove("preview") || reg.Remove("preview") {
		t.Error("Remove should report the runner only once")
	}
	if _, ok := reg.Get("preview"); ok || len(second.calls) != 1 {
		t.Errorf("removed runner still present or not destroyed: %v", second.calls)
	}

	reg.DestroyAll()
	if len(reg.List()) != 0 || r.State() != StateDestroyed {
		t.Error("DestroyAll left runners behind")
	}
}
