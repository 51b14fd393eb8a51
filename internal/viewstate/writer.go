package viewstate

import (
	"context"
	"errors"
	"sync"
	"time"
)

const flushTimeout = 5 * time.Second

// Writer coalesces view state saves per key and writes them to a Store on
// a fixed interval, on Flush and on Close.
//
// Load consults pending and in-flight writes before the store, so a
// viewport saved a moment ago is returned even though it has not reached
// the store yet.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Writer struct {
	store  Store
	logger Logger

	mu      sync.Mutex
	pending map[Key]ViewState
	closed  bool

	// inflight holds the batch a running Flush is writing. Keys are removed
	// as their store write completes.
	inflight map[Key]ViewState

	// flushMu allows one flush at a time.
	flushMu sync.Mutex

	flushTick *time.Ticker
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewWriter creates a writer and starts its background flush goroutine.
func NewWriter(store Store, interval time.Duration) *Writer {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	w := &Writer{
		store:     store,
		logger:    noopLogger{},
		pending:   make(map[Key]ViewState),
		flushTick: time.NewTicker(interval),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.flushLoop()
	return w
}

// SetLogger sets the logger for the writer.
func (w *Writer) SetLogger(logger Logger) {
	w.logger = logger
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.flushTick.C:
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			if err := w.Flush(ctx); err != nil {
				w.logger.Warn("view state flush failed", "error", err)
			}
			cancel()
		case <-w.done:
			return
		}
	}
}

// Save records vs for key. It replaces any pending write for the same key.
func (w *Writer) Save(key Key, vs ViewState) error {
	if err := key.validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.pending[key] = vs
	return nil
}

// Load returns the pending or in-flight write for key, or the stored view
// state.
func (w *Writer) Load(ctx context.Context, key Key) (ViewState, bool, error) {
	w.mu.Lock()
	vs, ok := w.pending[key]
	if !ok {
		vs, ok = w.inflight[key]
	}
	w.mu.Unlock()
	if ok {
		return vs, true, nil
	}
	return w.store.Load(ctx, key)
}

// Pending returns the number of keys waiting to be written.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flush writes all pending view states. Failed writes are queued again
// unless a newer value for the same key arrived meanwhile.
func (w *Writer) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[Key]ViewState, len(batch))
	w.inflight = make(map[Key]ViewState, len(batch))
	for key, vs := range batch {
		w.inflight[key] = vs
	}
	w.mu.Unlock()

	var errs []error
	for key, vs := range batch {
		err := w.store.Save(ctx, key, vs)

		w.mu.Lock()
		delete(w.inflight, key)
		if err != nil {
			errs = append(errs, err)
			if _, newer := w.pending[key]; !newer {
				w.pending[key] = vs
			}
		}
		w.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Close stops the flush goroutine and writes what is still pending.
// Close is idempotent.
func (w *Writer) Close(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.flushTick.Stop()
	close(w.done)
	w.wg.Wait()

	return w.Flush(ctx)
}
