package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{Type: TypeLogout})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherCloseFlushesBuffer(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)
	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{Type: TypeLoginSuccess, UserID: int64(i)})
	}
	d.Close()
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events, got %d", got)
	}

	d.Emit(context.Background(), Event{Type: TypeLoginSuccess})
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event blocks in the sink, one fills the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Type: TypeMassDownload})
		if i == 0 {
			time.Sleep(20 * time.Millisecond)
		}
	}
	if d.Dropped() < 8 {
		t.Fatalf("expected at least 8 drops, got %d", d.Dropped())
	}
	close(sink.gate)
	d.Close()
}

func TestDispatcherBlockingRespectsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Type: TypeLogout})
	time.Sleep(20 * time.Millisecond)
	d.Emit(context.Background(), Event{Type: TypeLogout})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Emit(ctx, Event{Type: TypeLogout})
	if time.Since(start) > time.Second {
		t.Fatal("blocking emit did not honour context cancellation")
	}
}

func TestDispatcherStampsTimestamp(t *testing.T) {
	ch := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, ch)
	d.Emit(context.Background(), Event{Type: TypeNewDevice})
	d.Close()

	ev := <-ch.Events()
	if ev.Timestamp.IsZero() {
		t.Fatal("expected dispatcher to stamp timestamp")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{Type: TypeShareRevoked, UserID: 3, ProfileID: 9, Success: true})
	s.Emit(context.Background(), Event{Type: TypeAccessDenied, Reason: "no_grant"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var got Event
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.Type != TypeShareRevoked || got.ProfileID != 9 {
		t.Fatalf("unexpected event %+v", got)
	}
	if !strings.Contains(lines[1], `"reason":"no_grant"`) {
		t.Fatalf("expected reason in %s", lines[1])
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	s := NewSlogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	s.Emit(context.Background(), Event{Type: TypeLoginSuccess, UserID: 1, Success: true})
	s.Emit(context.Background(), Event{Type: TypeLoginFailure, IP: "10.0.0.1", Metadata: map[string]string{"email": "a@b.c"}})

	out := buf.String()
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "event_type=login_success") {
		t.Fatalf("missing info record: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "meta.email=a@b.c") {
		t.Fatalf("missing warn record: %s", out)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), Event{Type: TypeInviteCreated})
	if a.count.Load() != 1 || b.count.Load() != 1 {
		t.Fatal("expected every sink to receive the event")
	}
}
