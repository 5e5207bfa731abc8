package session

import (
	"context"
	"sync"

	"github.com/R3E-Network/marketplace/internal/app/metrics"
	"github.com/R3E-Network/marketplace/internal/clarity"
	svcerrors "github.com/R3E-Network/marketplace/internal/errors"
	"github.com/R3E-Network/marketplace/pkg/logger"
)

// Manager owns the wallet session. It is the only writer of the connected
// address; fetchers observe it through Subscribe.
type Manager struct {
	store     Store
	connector Connector
	app       AppDetails
	log       *logger.Logger

	mu      sync.Mutex
	state   State
	address string
	lastErr error
	attempt uint64

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	// emitMu keeps event delivery in transition order.
	emitMu sync.Mutex
}

// NewManager creates a manager in the Disconnected state. Call Resume to pick
// up a previously persisted session.
func NewManager(store Store, connector Connector, app AppDetails, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("session")
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		store:     store,
		connector: connector,
		app:       app,
		log:       log,
		subs:      make(map[int]func(Event)),
	}
}

// Resume silently restores a persisted session. A missing or unreadable
// session leaves the manager Disconnected.
func (m *Manager) Resume(ctx context.Context) error {
	s, err := m.store.Load(ctx)
	if err != nil {
		m.log.WithError(err).Warn("session resume failed")
		return svcerrors.Connection("load session", err)
	}
	if !s.Connected || s.Address == "" {
		return nil
	}
	if _, _, err := clarity.DecodeAddress(s.Address); err != nil {
		m.log.WithError(err).WithField("address", s.Address).Warn("ignoring persisted session with invalid address")
		return nil
	}

	m.mu.Lock()
	if m.state == Connecting {
		m.mu.Unlock()
		return nil
	}
	m.state = Connected
	m.address = s.Address
	m.lastErr = nil
	m.mu.Unlock()

	m.log.WithField("address", s.Address).Info("wallet session resumed")
	m.emit()
	return nil
}

// Connect launches the wallet connection flow. While a flow is in progress
// further calls are no-ops, so the connector runs at most once at a time.
// The outcome arrives as an Event; use WaitConnected to block on it.
func (m *Manager) Connect(ctx context.Context) error {
	if m.connector == nil {
		return svcerrors.Connection("no wallet connector configured", nil)
	}

	m.mu.Lock()
	if m.state == Connecting {
		m.mu.Unlock()
		m.log.Debug("connect ignored: already connecting")
		return nil
	}
	m.attempt++
	attempt := m.attempt
	prevState, prevAddress := m.state, m.address
	m.state = Connecting
	m.lastErr = nil
	m.mu.Unlock()
	m.emit()

	var once sync.Once
	req := ConnectRequest{
		AppName: m.app.Name,
		AppIcon: m.app.Icon,
		OnFinish: func(err error) {
			once.Do(func() { m.finish(context.WithoutCancel(ctx), attempt, prevState, prevAddress, err) })
		},
	}

	m.log.WithField("app", m.app.Name).Info("starting wallet connection")
	if err := m.connector.Connect(ctx, req); err != nil {
		cerr := svcerrors.Connection("wallet connection failed to start", err)
		once.Do(func() { m.fail(attempt, prevState, prevAddress, cerr) })
		return cerr
	}
	return nil
}

// finish handles connector completion: re-read the store the wallet wrote to
// and commit the address it holds.
func (m *Manager) finish(ctx context.Context, attempt uint64, prevState State, prevAddress string, flowErr error) {
	if flowErr != nil {
		m.fail(attempt, prevState, prevAddress, svcerrors.Connection("wallet connection failed", flowErr))
		return
	}
	s, err := m.store.Load(ctx)
	if err != nil {
		m.fail(attempt, prevState, prevAddress, svcerrors.Connection("load session after connect", err))
		return
	}
	if !s.Connected || s.Address == "" {
		m.fail(attempt, prevState, prevAddress, svcerrors.Connection("wallet finished without an address", nil))
		return
	}

	m.mu.Lock()
	if attempt != m.attempt || m.state != Connecting {
		m.mu.Unlock()
		return
	}
	m.state = Connected
	m.address = s.Address
	m.mu.Unlock()

	metrics.RecordSessionConnect("connected")
	m.log.WithField("address", s.Address).Info("wallet connected")
	m.emit()
}

// fail returns to the state held before the attempt and records err.
func (m *Manager) fail(attempt uint64, prevState State, prevAddress string, err error) {
	m.mu.Lock()
	if attempt != m.attempt || m.state != Connecting {
		m.mu.Unlock()
		return
	}
	m.state = prevState
	m.address = prevAddress
	m.lastErr = err
	m.mu.Unlock()

	metrics.RecordSessionConnect("failed")
	m.log.WithError(err).Warn("wallet connection failed")
	m.emit()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Address returns the connected address, or "" when not connected. While an
// account switch is in progress the previous address stays current until the
// wallet reports back.
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addressLocked()
}

func (m *Manager) addressLocked() string {
	if m.state == Disconnected {
		return ""
	}
	return m.address
}

// Session returns a snapshot of the session.
func (m *Manager) Session() WalletSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := m.addressLocked()
	if addr == "" {
		return WalletSession{}
	}
	return WalletSession{Connected: true, Address: addr}
}

// LastError returns the error of the most recent failed connect, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Subscribe registers fn for session events and returns a function that
// removes it. Callbacks run synchronously and must not block.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// WaitConnected blocks until the session is Connected or the current attempt
// fails.
func (m *Manager) WaitConnected(ctx context.Context) (string, error) {
	ch := make(chan Event, 1)
	unsubscribe := m.Subscribe(func(e Event) {
		select {
		case ch <- e:
		default:
			// Keep only the newest event.
			select {
			case <-ch:
			default:
			}
			ch <- e
		}
	})
	defer unsubscribe()

	ev := m.current()
	for {
		switch ev.State {
		case Connected:
			return ev.Address, nil
		case Disconnected:
			if ev.Err != nil {
				return "", ev.Err
			}
			return "", svcerrors.NoSession()
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev = <-ch:
			if ev.State == Connected && ev.Err == nil {
				continue
			}
			// A failed attempt may return to Connected with the old address.
			if ev.Err != nil {
				return "", ev.Err
			}
		}
	}
}

func (m *Manager) current() Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Event{State: m.state, Address: m.address, Err: m.lastErr}
}

// emit delivers the current state to every subscriber.
func (m *Manager) emit() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	ev := m.current()
	m.subMu.Lock()
	subs := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
