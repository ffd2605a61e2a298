package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"stockdash/internal/domain"
	"stockdash/internal/store"
)

func TestShowEvictsOldest(t *testing.T) {
	m := NewManager(Options{MaxVisible: 5, DefaultDuration: time.Hour}, nil, nil)
	var shown []Notification
	for i := 0; i < 7; i++ {
		shown = append(shown, m.Info(fmt.Sprintf("msg %d", i)))
	}

	active := m.Active()
	if len(active) != 5 {
		t.Fatalf("len(Active()) = %d, want 5", len(active))
	}
	if active[0].ID != shown[2].ID || active[4].ID != shown[6].ID {
		t.Errorf("active = %v..%v, want msg 2..msg 6", active[0].Message, active[4].Message)
	}
	m.RemoveAll()
	if len(m.Active()) != 0 {
		t.Error("RemoveAll left notifications behind")
	}
}

func TestDurations(t *testing.T) {
	m := NewManager(Options{}, nil, nil)
	defer m.RemoveAll()

	if d := m.Success("ok").Duration; d != DefaultDuration {
		t.Errorf("success duration = %v, want %v", d, DefaultDuration)
	}
	if d := m.Error("bad").Duration; d != ErrorDuration {
		t.Errorf("error duration = %v, want %v", d, ErrorDuration)
	}
	if d := m.Show("stay", domain.LevelWarning, ShowOptions{Persistent: true}).Duration; d != 0 {
		t.Errorf("persistent duration = %v, want 0", d)
	}
	if lvl := m.Show("odd", domain.Level("fatal"), ShowOptions{}).Level; lvl != domain.LevelInfo {
		t.Errorf("unknown level mapped to %q, want info", lvl)
	}
}

func TestRemove(t *testing.T) {
	m := NewManager(Options{DefaultDuration: time.Hour}, nil, nil)
	a := m.Warning("a")
	b := m.Warning("b")

	if !m.Remove(a.ID) {
		t.Fatal("Remove(a) = false")
	}
	if m.Remove(a.ID) {
		t.Error("second Remove(a) = true")
	}
	active := m.Active()
	if len(active) != 1 || active[0].ID != b.ID {
		t.Errorf("Active() = %+v, want only b", active)
	}
}

func TestActivePrunesExpired(t *testing.T) {
	m := NewManager(Options{DefaultDuration: time.Hour}, nil, nil)
	now := time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Info("short")
	m.Show("long", domain.LevelInfo, ShowOptions{Duration: 3 * time.Hour})
	now = now.Add(2 * time.Hour)

	active := m.Active()
	if len(active) != 1 || active[0].Message != "long" {
		t.Errorf("Active() = %+v, want only long", active)
	}
	m.RemoveAll()
}

func TestSubscribeReceivesEvents(t *testing.T) {
	m := NewManager(Options{}, nil, nil)
	m.Show("before", domain.LevelInfo, ShowOptions{Persistent: true})

	id, ch := m.Subscribe(8)
	defer m.Unsubscribe(id)

	snap := <-ch
	if snap.Type != "snapshot" || len(snap.Active) != 1 {
		t.Fatalf("first event = %+v, want snapshot of 1", snap)
	}

	n := m.Show("quick", domain.LevelSuccess, ShowOptions{Duration: 20 * time.Millisecond})
	if e := <-ch; e.Type != "show" || e.Notification.ID != n.ID {
		t.Fatalf("event = %+v, want show", e)
	}

	select {
	case e := <-ch:
		if e.Type != "remove" || e.ID != n.ID {
			t.Errorf("event = %+v, want remove of %s", e, n.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification did not expire")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewManager(Options{}, nil, nil)
	id, ch := m.Subscribe(1)
	<-ch
	m.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestActivityLogPersisted(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "notify.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	m := NewManager(Options{ActivityLimit: 3}, st, nil)
	for i := 0; i < 5; i++ {
		m.Log(ctx, fmt.Sprintf("event %d", i), domain.LevelInfo)
	}
	list := m.Activities(0)
	if len(list) != 3 || list[0].Message != "event 4" {
		t.Fatalf("Activities() = %+v, want newest 3", list)
	}
	if list[0].ID == 0 {
		t.Error("activity ID not assigned by store")
	}

	reloaded := NewManager(Options{ActivityLimit: 3}, st, nil)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := reloaded.Activities(2)
	if len(got) != 2 || got[0].Message != "event 4" || got[1].Message != "event 3" {
		t.Errorf("reloaded Activities(2) = %+v", got)
	}
}
