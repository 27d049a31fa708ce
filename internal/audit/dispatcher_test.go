package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherStampsULIDAndDelivers(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{EventType: "session_created", Timestamp: time.Now()})

	select {
	case e := <-sink.Events():
		if len(e.ID) != 26 {
			t.Fatalf("expected 26-char ULID, got %q", e.ID)
		}
		if e.EventType != "session_created" {
			t.Fatalf("unexpected event type %q", e.EventType)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops under backpressure")
	}

	close(sink.release)
	d.Close()

	sink.mu.Lock()
	delivered := len(sink.got)
	sink.mu.Unlock()
	if uint64(delivered)+d.Dropped() != 10 {
		t.Fatalf("delivered %d + dropped %d must account for all 10 events", delivered, d.Dropped())
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{ID: "01H", EventType: "logout", SessionID: "s1", Success: true})
	sink.Emit(context.Background(), Event{ID: "01J", EventType: "refresh", Reason: "refresh_mismatch"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var e Event
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Reason != "refresh_mismatch" || e.EventType != "refresh" {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestDispatcherBlockingHonoursContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	// First event parks the relay inside the sink, second fills the queue.
	d.Emit(context.Background(), Event{EventType: "a"})
	deadline := time.Now().Add(time.Second)
	for d.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "c"})
	if d.Dropped() != 1 {
		t.Fatalf("expected the timed-out emit to count as dropped, got %d", d.Dropped())
	}

	close(sink.release)
	d.Close()
	if len(sink.got) != 2 {
		t.Fatalf("expected 2 delivered events, got %d", len(sink.got))
	}
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()
	d.Close()

	d.Emit(context.Background(), Event{EventType: "late"})
	select {
	case e := <-sink.Events():
		t.Fatalf("event emitted after Close was delivered: %+v", e)
	default:
	}
}

func TestDispatcherCloseAccountsForConcurrentEmits(t *testing.T) {
	for round := 0; round < 50; round++ {
		sink := NewChannelSink(1024)
		d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

		const emitters, perEmitter = 8, 16
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < emitters; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < perEmitter; j++ {
					d.Emit(context.Background(), Event{EventType: "e"})
				}
			}()
		}
		close(start)
		d.Close()
		wg.Wait()

		delivered := len(sink.Events())
		if got := uint64(delivered) + d.Dropped(); got != emitters*perEmitter {
			t.Fatalf("round %d: delivered %d + dropped %d != %d emitted", round, delivered, d.Dropped(), emitters*perEmitter)
		}
	}
}

func TestDispatcherCountsEmitAfterClose(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, NoOpSink{})
	d.Close()
	d.Emit(context.Background(), Event{EventType: "late"})
	if d.Dropped() != 1 {
		t.Fatalf("expected emit after Close to count as dropped, got %d", d.Dropped())
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	var got []string
	record := func(name string) Sink {
		return SinkFunc(func(_ context.Context, e Event) {
			got = append(got, name+":"+e.EventType)
		})
	}
	MultiSink{record("a"), nil, record("b")}.Emit(context.Background(), Event{EventType: "logout_session"})

	if strings.Join(got, ",") != "a:logout_session,b:logout_session" {
		t.Fatalf("unexpected fan-out %v", got)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	sink.Emit(context.Background(), Event{ID: "01H", EventType: "session_created", UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{
		ID:        "01J",
		EventType: "refresh_invalid",
		SessionID: "s1",
		Reason:    "refresh_mismatch",
		Metadata:  map[string]string{"user_agent": "curl"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first["level"] != "INFO" || first["msg"] != "audit session_created" || first["user_id"] != "u1" {
		t.Fatalf("unexpected success record %v", first)
	}
	if _, ok := first["session_id"]; ok {
		t.Fatalf("empty fields must be omitted: %v", first)
	}
	meta, _ := second["metadata"].(map[string]any)
	if second["level"] != "WARN" || second["reason"] != "refresh_mismatch" || meta["user_agent"] != "curl" {
		t.Fatalf("unexpected failure record %v", second)
	}
}
