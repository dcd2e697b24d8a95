package ui

import (
	"errors"
	"strings"
	"testing"

	"jitkit/internal/gen"
)

func TestApplyEvent(t *testing.T) {
	events := make(chan gen.Event)
	m := NewProgressModel("jitgen derive", events).(*progressModel)

	m.applyEvent(gen.Event{Package: "a", Stage: gen.StageLoad, Status: gen.StatusQueued})
	m.applyEvent(gen.Event{Package: "b", Stage: gen.StageLoad, Status: gen.StatusQueued})
	m.applyEvent(gen.Event{Stage: gen.StageLoad, Status: gen.StatusWorking})
	if len(m.items) != 2 {
		t.Fatalf("got %d items, want 2", len(m.items))
	}
	if got := m.percent(); got < 0.09 || got > 0.11 {
		t.Fatalf("percent = %v, want 0.1", got)
	}

	m.applyEvent(gen.Event{Package: "a", Stage: gen.StageAnalyze, Status: gen.StatusWorking})
	if m.items[0].status != "analyzing" {
		t.Fatalf("status = %q", m.items[0].status)
	}
	m.applyEvent(gen.Event{Package: "b", Stage: gen.StageEmit, Status: gen.StatusCached})
	m.applyEvent(gen.Event{Package: "a", Stage: gen.StageEmit, Status: gen.StatusDone})
	if m.items[0].final {
		t.Fatalf("emit done is not final")
	}
	m.applyEvent(gen.Event{Package: "a", Stage: gen.StageWrite, Status: gen.StatusDone})
	if got := m.percent(); got != 1 {
		t.Fatalf("percent = %v, want 1", got)
	}

	view := m.View()
	for _, want := range []string{"jitgen derive", "written", "cached", " a\n", " b\n", "2 packages, 1 written, 1 cached, 0 failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q:\n%s", want, view)
		}
	}
}

func TestApplyEventError(t *testing.T) {
	m := NewProgressModel("jitgen check", make(chan gen.Event)).(*progressModel)
	m.applyEvent(gen.Event{Package: "bad", Stage: gen.StageAnalyze, Status: gen.StatusError, Err: errors.New("x.go:3:1: not packed\nmore")})
	if it := m.items[0]; !it.final || it.status != "failed" || it.err != "x.go:3:1: not packed" {
		t.Fatalf("item = %+v", it)
	}
	if view := m.View(); !strings.Contains(view, "not packed") || strings.Contains(view, "more") {
		t.Errorf("view:\n%s", view)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		stage  gen.Stage
		status gen.Status
		want   string
	}{
		{gen.StageLoad, gen.StatusWorking, "loading"},
		{gen.StageEmit, gen.StatusDone, "generated"},
		{gen.StageWrite, gen.StatusDone, "written"},
		{gen.StageWrite, gen.StatusSkipped, "unchanged"},
		{gen.StageLoad, gen.StatusSkipped, "skipped"},
		{gen.StageAnalyze, gen.StatusError, "failed"},
		{gen.Stage("other"), gen.StatusWorking, ""},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.stage, tt.status); got != tt.want {
			t.Errorf("statusLabel(%s, %s) = %q, want %q", tt.stage, tt.status, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("example.com/very/long/package", 12); len(got) > 12 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
