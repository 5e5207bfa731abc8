package fetch

import (
	"context"
	"errors"
	"sync"

	"github.com/R3E-Network/marketplace/internal/app/metrics"
	"github.com/R3E-Network/marketplace/pkg/logger"
)

// ErrClosed is returned by Wait after Close.
var ErrClosed = errors.New("fetcher closed")

// LoadFunc performs the read for key.
type LoadFunc[K comparable, T any] func(ctx context.Context, key K) (T, error)

// Fetcher is a keyed, last-write-wins loader. Every request carries a
// generation token; a response commits only when its token is still current.
type Fetcher[K comparable, T any] struct {
	name string
	load LoadFunc[K, T]
	log  *logger.Logger

	base       context.Context
	cancelBase context.CancelFunc

	mu     sync.Mutex
	key    K
	hasKey bool
	gen    uint64
	cancel context.CancelFunc
	state  State[T]
	closed bool

	subMu   sync.Mutex
	subs    map[int]func(State[T])
	nextSub int
	// notifyMu serializes delivery so subscribers never see an older state last.
	notifyMu sync.Mutex

	wg sync.WaitGroup
}

// New creates an idle fetcher named name.
func New[K comparable, T any](name string, load LoadFunc[K, T], log *logger.Logger) *Fetcher[K, T] {
	if log == nil {
		log = logger.NewDefault("fetch")
	}
	base, cancel := context.WithCancel(context.Background())
	return &Fetcher[K, T]{
		name:       name,
		load:       load,
		log:        log,
		base:       base,
		cancelBase: cancel,
		subs:       make(map[int]func(State[T])),
	}
}

// Name returns the fetcher name used in logs and metrics.
func (f *Fetcher[K, T]) Name() string { return f.name }

// Set makes key current. A new key, or the same key after a failure, issues
// a request; the same key while Loading or Loaded is a no-op. It returns the
// generation that will settle the state.
func (f *Fetcher[K, T]) Set(key K) uint64 {
	f.mu.Lock()
	if f.closed {
		gen := f.gen
		f.mu.Unlock()
		return gen
	}
	if f.hasKey && f.key == key && (f.state.Status == Loading || f.state.Status == Loaded) {
		gen := f.gen
		f.mu.Unlock()
		return gen
	}
	f.key = key
	f.hasKey = true
	return f.startLocked()
}

// Refresh re-issues the request for the current key under a new generation.
// It returns 0 when no key has been set.
func (f *Fetcher[K, T]) Refresh() uint64 {
	f.mu.Lock()
	if f.closed || !f.hasKey {
		f.mu.Unlock()
		return 0
	}
	return f.startLocked()
}

// Reset drops the key and returns to Idle. In-flight responses become stale.
func (f *Fetcher[K, T]) Reset() {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	var zero K
	f.key = zero
	f.hasKey = false
	f.gen++
	f.state = State[T]{Status: Idle, Generation: f.gen}
	f.mu.Unlock()

	metrics.RecordFetchTransition(f.name, Idle.String())
	f.notify()
}

// startLocked begins a new generation. It must be called with f.mu held and
// releases it.
func (f *Fetcher[K, T]) startLocked() uint64 {
	if f.cancel != nil {
		f.cancel()
	}
	f.gen++
	gen := f.gen
	key := f.key
	ctx, cancel := context.WithCancel(f.base)
	f.cancel = cancel
	f.state = State[T]{Status: Loading, Generation: gen}
	f.wg.Add(1)
	f.mu.Unlock()

	metrics.RecordFetchTransition(f.name, Loading.String())
	f.log.WithField("fetcher", f.name).WithField("generation", gen).WithField("key", key).Debug("fetch started")
	f.notify()

	go f.run(ctx, cancel, gen, key)
	return gen
}

func (f *Fetcher[K, T]) run(ctx context.Context, cancel context.CancelFunc, gen uint64, key K) {
	defer f.wg.Done()
	defer cancel()

	value, err := f.load(ctx, key)

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		metrics.RecordStaleResponse(f.name)
		f.log.WithField("fetcher", f.name).WithField("generation", gen).Debug("dropping stale response")
		return
	}
	if err != nil {
		info := NewErrorInfo(err)
		f.state = State[T]{Status: Failed, Err: &info, Generation: gen}
	} else {
		f.state = State[T]{Status: Loaded, Value: value, Generation: gen}
	}
	f.cancel = nil
	status := f.state.Status
	f.mu.Unlock()

	metrics.RecordFetchTransition(f.name, status.String())
	if err != nil {
		f.log.WithError(err).WithField("fetcher", f.name).WithField("key", key).Warn("fetch failed")
	} else {
		f.log.WithField("fetcher", f.name).WithField("generation", gen).Debug("fetch completed")
	}
	f.notify()
}

// State returns the current snapshot.
func (f *Fetcher[K, T]) State() State[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Key returns the current key and whether one is set.
func (f *Fetcher[K, T]) Key() (K, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key, f.hasKey
}

// Subscribe registers fn for state changes and returns a function removing
// it. fn receives the current state at delivery time and must not block.
func (f *Fetcher[K, T]) Subscribe(fn func(State[T])) func() {
	f.subMu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.subMu.Unlock()

	return func() {
		f.subMu.Lock()
		delete(f.subs, id)
		f.subMu.Unlock()
	}
}

func (f *Fetcher[K, T]) notify() {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	st := f.State()
	f.subMu.Lock()
	subs := make([]func(State[T]), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.subMu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// Wait blocks until the state at generation gen or later is no longer
// Loading, and returns it. Pass 0 to wait for whatever is current.
func (f *Fetcher[K, T]) Wait(ctx context.Context, gen uint64) (State[T], error) {
	ch := make(chan struct{}, 1)
	unsubscribe := f.Subscribe(func(State[T]) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		f.mu.Lock()
		st, closed := f.state, f.closed
		f.mu.Unlock()

		if st.Generation >= gen && st.Settled() {
			return st, nil
		}
		if closed {
			return st, ErrClosed
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ch:
		}
	}
}

// Close cancels any in-flight request and waits for its goroutine.
func (f *Fetcher[K, T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.gen++
	f.mu.Unlock()

	f.cancelBase()
	f.wg.Wait()
	f.notify()
}
