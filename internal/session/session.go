// Package session owns the wallet connection lifecycle: the connected address,
// its persistence across restarts, and the single connect action.
package session

import (
	"context"
	"fmt"
)

// State is the connection state of the wallet session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// WalletSession is the persisted view of the connected wallet.
type WalletSession struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

// Store persists the wallet session. Load on an empty store returns the zero
// session and no error.
type Store interface {
	Load(ctx context.Context) (WalletSession, error)
	Save(ctx context.Context, s WalletSession) error
}

// AppDetails identifies this application to the wallet.
type AppDetails struct {
	Name string `json:"name" yaml:"app_name" env:"MARKETPLACE_WALLET_APP_NAME"`
	Icon string `json:"icon" yaml:"app_icon" env:"MARKETPLACE_WALLET_APP_ICON"`
}

// ConnectRequest is handed to the wallet connector. OnFinish must be called
// exactly once when the external flow ends; a nil error means the wallet
// wrote its session.
type ConnectRequest struct {
	AppName  string
	AppIcon  string
	OnFinish func(err error)
}

// Connector runs the external wallet connection flow. Connect returns once the
// flow has been launched; completion is reported through req.OnFinish.
type Connector interface {
	Connect(ctx context.Context, req ConnectRequest) error
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, req ConnectRequest) error

func (f ConnectorFunc) Connect(ctx context.Context, req ConnectRequest) error { return f(ctx, req) }

// Event is emitted on every session state change.
type Event struct {
	State   State  `json:"state"`
	Address string `json:"address,omitempty"`
	Err     error  `json:"-"`
}
