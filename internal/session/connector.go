package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/R3E-Network/marketplace/internal/clarity"
	svcerrors "github.com/R3E-Network/marketplace/internal/errors"
	"github.com/R3E-Network/marketplace/pkg/logger"
)

// ResolveIdentity turns a user-supplied identity into a Stacks address. It
// accepts an address or a hex public key (33 or 65 bytes). The result must
// belong to the requested network.
func ResolveIdentity(identity string, mainnet bool) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", svcerrors.BadRequest("address or public key required")
	}

	if strings.HasPrefix(strings.ToUpper(identity), "S") {
		version, hash, err := clarity.DecodeAddress(identity)
		if err != nil {
			return "", svcerrors.BadRequest(fmt.Sprintf("invalid address: %v", err))
		}
		if clarity.IsMainnetVersion(version) != mainnet {
			return "", svcerrors.BadRequest(fmt.Sprintf("address %s is not a %s address", identity, networkLabel(mainnet)))
		}
		return clarity.EncodeAddress(version, hash), nil
	}

	if _, err := hex.DecodeString(strings.TrimPrefix(identity, "0x")); err != nil {
		return "", svcerrors.BadRequest("identity is neither an address nor a hex public key")
	}
	addr, err := clarity.AddressFromPublicKey(identity, mainnet)
	if err != nil {
		return "", svcerrors.BadRequest(fmt.Sprintf("invalid public key: %v", err))
	}
	return addr, nil
}

func networkLabel(mainnet bool) string {
	if mainnet {
		return "mainnet"
	}
	return "testnet"
}

// AddressConnector is a wallet connector for headless surfaces. The identity
// the user supplies is offered first; Connect consumes it, writes the session
// to the store and reports completion asynchronously, as a browser wallet
// would after its popup closes.
type AddressConnector struct {
	store   Store
	mainnet bool
	log     *logger.Logger

	mu      sync.Mutex
	pending string
}

var _ Connector = (*AddressConnector)(nil)

// NewAddressConnector creates a connector writing to store.
func NewAddressConnector(store Store, mainnet bool, log *logger.Logger) *AddressConnector {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &AddressConnector{store: store, mainnet: mainnet, log: log}
}

// Offer sets the identity the next Connect will use, replacing any earlier
// unconsumed one.
func (c *AddressConnector) Offer(identity string) {
	c.mu.Lock()
	c.pending = identity
	c.mu.Unlock()
}

func (c *AddressConnector) take() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	identity := c.pending
	c.pending = ""
	return identity
}

// Connect validates the offered identity and completes the flow in the
// background.
func (c *AddressConnector) Connect(ctx context.Context, req ConnectRequest) error {
	address, err := ResolveIdentity(c.take(), c.mainnet)
	if err != nil {
		return err
	}
	if req.OnFinish == nil {
		return fmt.Errorf("connect request has no completion callback")
	}

	c.log.WithField("app", req.AppName).WithField("address", address).Debug("wallet approved connection")
	saveCtx := context.WithoutCancel(ctx)
	go func() {
		req.OnFinish(c.store.Save(saveCtx, WalletSession{Connected: true, Address: address}))
	}()
	return nil
}
