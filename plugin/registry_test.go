package plugin

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingPlugin struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPlugin) Name() string { return "recorder" }

func (p *recordingPlugin) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPlugin) OnInit(context.Context, interface{}) error {
	p.record("init")
	return nil
}

func (p *recordingPlugin) OnTimeAdvanced(_ context.Context, from, to int64) error {
	p.record("advance")
	return nil
}

func (p *recordingPlugin) OnCollected(context.Context, interface{}) error {
	p.record("collected")
	return errors.New("sink unavailable")
}

type namedPlugin string

func (n namedPlugin) Name() string { return string(n) }

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }

func (slowPlugin) OnShutdown(ctx context.Context) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func TestRegisterCachesInterfaces(t *testing.T) {
	r := NewRegistry()
	p := &recordingPlugin{}
	if err := r.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got := len(r.onInit); got != 1 {
		t.Errorf("onInit: got %d, want 1", got)
	}
	if got := len(r.onTimeAdvanced); got != 1 {
		t.Errorf("onTimeAdvanced: got %d, want 1", got)
	}
	if got := len(r.onShutdown); got != 0 {
		t.Errorf("onShutdown: got %d, want 0", got)
	}

	ifaces := r.getImplementedInterfaces(p)
	want := []string{"OnInit", "OnTimeAdvanced", "OnCollected"}
	if strings.Join(ifaces, ",") != strings.Join(want, ",") {
		t.Errorf("interfaces: got %v, want %v", ifaces, want)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(namedPlugin("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(namedPlugin("a")); err == nil {
		t.Error("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1", r.Count())
	}
	if r.Get("a") == nil || r.Get("b") != nil {
		t.Error("Get returned wrong plugin")
	}
	if len(r.List()) != 1 {
		t.Errorf("List: got %d plugins, want 1", len(r.List()))
	}
}

func TestEmitDispatchesAndLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry().WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	p := &recordingPlugin{}
	if err := r.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	r.EmitInit(ctx, nil)
	r.EmitTimeAdvanced(ctx, 1, 2)
	r.EmitCollected(ctx, nil)
	r.EmitShutdown(ctx)

	want := []string{"init", "advance", "collected"}
	if strings.Join(p.events, ",") != strings.Join(want, ",") {
		t.Errorf("events: got %v, want %v", p.events, want)
	}
	if !strings.Contains(buf.String(), "plugin OnCollected failed") {
		t.Errorf("expected failure to be logged, got %q", buf.String())
	}
}

func TestHookTimeout(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry().
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))).
		WithTimeout(20 * time.Millisecond)
	if err := r.Register(slowPlugin{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	start := time.Now()
	r.EmitShutdown(context.Background())
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("EmitShutdown blocked for %v", elapsed)
	}
	if !strings.Contains(buf.String(), "plugin timeout: slow") {
		t.Errorf("expected timeout to be logged, got %q", buf.String())
	}
}
