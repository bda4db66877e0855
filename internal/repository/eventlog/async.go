package eventlog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/toxfilter/internal/domain/event"
	"github.com/kailas-cloud/toxfilter/internal/metrics"
)

// Appender writes events to the sink.
type Appender interface {
	Append(ctx context.Context, events ...event.Event) error
}

// Async hands events to a background writer so callers never block on sink I/O.
// A full buffer drops the event.
type Async struct {
	sink    Appender
	timeout time.Duration
	logger  *zap.Logger

	ch        chan event.Event
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts the writer goroutine.
func NewAsync(sink Appender, buffer int, timeout time.Duration, logger *zap.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Async{
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		ch:      make(chan event.Event, buffer),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Record queues an event. Never blocks.
func (a *Async) Record(e event.Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metrics.EventLogEventsTotal.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case a.ch <- e:
	default:
		metrics.EventLogEventsTotal.WithLabelValues("dropped").Inc()
		a.logger.Warn("Event log buffer full, event dropped", zap.String("source", string(e.Source)))
	}
}

// Close drains queued events and stops the writer.
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
	})
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.ch {
		batch := []event.Event{e}
	drain:
		for len(batch) < cap(a.ch) {
			select {
			case next, ok := <-a.ch:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		a.write(batch)
	}
}

func (a *Async) write(batch []event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.sink.Append(ctx, batch...); err != nil {
		metrics.EventLogEventsTotal.WithLabelValues("failed").Add(float64(len(batch)))
		a.logger.Warn("Event log write failed", zap.Int("events", len(batch)), zap.Error(err))
		return
	}
	metrics.EventLogEventsTotal.WithLabelValues("written").Add(float64(len(batch)))
}

// Discard drops every event. Used when the log is disabled.
type Discard struct{}

// Record implements the recorder contract.
func (Discard) Record(event.Event) {}
