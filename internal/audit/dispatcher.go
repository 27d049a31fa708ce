package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; overflow is counted, not queued.
	DropIfFull bool
}

// Dispatcher moves events off the request path: Emit enqueues and one
// relay goroutine feeds the sink. A nil *Dispatcher is valid and discards
// everything.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	queue   chan Event
	stop    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once

	// Emit holds inflight for reading so Close can wait it out.
	inflight sync.RWMutex
	closing  atomic.Bool
	dropped  atomic.Uint64
}

// NewDispatcher starts the relay. It returns nil when auditing is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
	}
	d.stopped.Add(1)
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer d.stopped.Done()
	ctx := context.Background()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(ctx, event)
		case <-d.stop:
			d.drain(ctx)
			return
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(ctx, event)
		default:
			return
		}
	}
}

// Emit stamps a ULID on event when it has none and enqueues it. Without
// DropIfFull it waits for buffer space, ctx or Close, whichever comes first.
// Every event is either delivered or counted in Dropped, including those
// emitted during or after Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.inflight.RLock()
	defer d.inflight.RUnlock()
	if d.closing.Load() {
		d.dropped.Add(1)
		return
	}
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
		d.dropped.Add(1)
	}
}

// Pending reports how many events are queued but not yet delivered.
func (d *Dispatcher) Pending() int {
	if d == nil {
		return 0
	}
	return len(d.queue)
}

// Close stops accepting events, flushes the queue into the sink and waits
// for the relay to exit. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.stopped.Wait()

		// Emits that passed the closing check may have enqueued after the
		// relay's drain.
		d.inflight.Lock()
		d.inflight.Unlock()
		d.drain(context.Background())
	})
}

// Dropped reports how many events were discarded under backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
