// internal/records/recorder.go
package records

import (
	"context"
	"sync"
	"time"

	"github.com/erilali/gameroom/internal/logger"
)

// Recorder writes records off the hot path. Submit never blocks: when the queue is full the
// record is skipped and logged. Store errors are logged and swallowed.
type Recorder struct {
	store   Store
	queue   chan Record
	timeout time.Duration
	logger  *logger.Logger
	onSkip  func()
	onWrite func(error)

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// OnSkip is called for every record dropped because the queue was full or closed.
func OnSkip(f func()) RecorderOption {
	return func(r *Recorder) { r.onSkip = f }
}

// OnWrite is called after every store write with its result.
func OnWrite(f func(error)) RecorderOption {
	return func(r *Recorder) { r.onWrite = f }
}

// NewRecorder creates a recorder with a queue of size records. Call Run to start writing.
func NewRecorder(store Store, size int, timeout time.Duration, log *logger.Logger, opts ...RecorderOption) *Recorder {
	if size <= 0 {
		size = 128
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	r := &Recorder{
		store:   store,
		queue:   make(chan Record, size),
		timeout: timeout,
		logger:  log,
		onSkip:  func() {},
		onWrite: func(error) {},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the backend records are written to.
func (r *Recorder) Store() Store {
	return r.store
}

// Submit queues rec for writing and reports whether it was accepted.
func (r *Recorder) Submit(rec Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.skip(rec, "recorder closed")
		return false
	}
	select {
	case r.queue <- rec:
		return true
	default:
		r.skip(rec, "queue full")
		return false
	}
}

func (r *Recorder) skip(rec Record, reason string) {
	r.logger.Warnf("Record skipped for %s room %s: %s", rec.GameType, rec.RoomID, reason)
	r.onSkip()
}

// Run writes queued records until Close drains the queue. Each write gets its own timeout
// derived from ctx.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	for rec := range r.queue {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		id, err := r.store.RecordGame(wctx, rec)
		cancel()
		r.onWrite(err)
		if err != nil {
			r.logger.Errorf("Record skipped for %s room %s: %v", rec.GameType, rec.RoomID, err)
			continue
		}
		r.logger.Debugf("Recorded %s game %d from room %s", rec.GameType, id, rec.RoomID)
	}
}

// Close stops accepting records and waits for Run to write what is queued, or for ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
