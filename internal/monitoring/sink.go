package monitoring

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// Async decouples engines from a slow sink. Records are queued in a bounded
// buffer and delivered by one goroutine; when the buffer is full the record
// is dropped so Publish never blocks.
type Async struct {
	next    optimization.Sink
	queue   chan optimization.Record
	dropped atomic.Uint64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewAsync starts delivering to next. A buffer below 1 is raised to 1.
func NewAsync(next optimization.Sink, buffer int) *Async {
	if buffer < 1 {
		buffer = 1
	}
	a := &Async{
		next:  next,
		queue: make(chan optimization.Record, buffer),
		done:  make(chan struct{}),
	}
	go a.deliver()
	return a
}

func (a *Async) deliver() {
	defer close(a.done)
	for rec := range a.queue {
		a.next.Publish(rec)
	}
}

// Publish implements optimization.Sink.
func (a *Async) Publish(rec optimization.Record) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- rec:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of records discarded so far.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting records and waits until the queued ones are
// delivered.
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
}

// Log writes every record to a zap logger at debug level.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a sink logging to logger.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("monitor")}
}

// Publish implements optimization.Sink.
func (l *Log) Publish(rec optimization.Record) {
	l.logger.Debug(rec.Label,
		zap.String("algorithm", rec.Algorithm),
		zap.String("group", rec.Group),
		zap.Int("rank", rec.Rank),
		zap.Float64("value", rec.Value),
		zap.Time("timestamp", rec.Timestamp))
}

// Multi fans a record out to several sinks in order.
type Multi []optimization.Sink

// Publish implements optimization.Sink.
func (m Multi) Publish(rec optimization.Record) {
	for _, s := range m {
		s.Publish(rec)
	}
}
