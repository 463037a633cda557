package authgate

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// blockingSink holds every Emit until released.
type blockingSink struct {
	release chan struct{}
	seen    chan AuditEvent
}

func newBlockingSink(capacity int) *blockingSink {
	return &blockingSink{
		release: make(chan struct{}),
		seen:    make(chan AuditEvent, capacity),
	}
}

func (s *blockingSink) Emit(_ context.Context, event AuditEvent) {
	<-s.release
	s.seen <- event
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := newBlockingSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		d.Emit(ctx, AuditEvent{EventType: AuditLogin})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected drops with a saturated buffer")
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16, DropIfFull: false}, sink)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d.Emit(ctx, AuditEvent{EventType: AuditSignup})
	}

	d.Close()

	for i := 0; i < 5; i++ {
		select {
		case <-sink.Events():
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered before Close returned", i)
		}
	}

	// Emit after Close is a silent no-op.
	d.Emit(ctx, AuditEvent{EventType: AuditSignup})
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}

	// Nil methods must be callable.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex

	sink := NewJSONWriterSink(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}))

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now(),
		EventType: AuditLogout,
		Email:     "user@example.com",
		Success:   true,
	})

	mu.Lock()
	line := buf.String()
	mu.Unlock()

	var decoded AuditEvent
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("output is not one JSON object per line: %v", err)
	}
	if decoded.EventType != AuditLogout || decoded.Email != "user@example.com" || !decoded.Success {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
