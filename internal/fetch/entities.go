package fetch

import (
	"context"
	"sync"

	"github.com/R3E-Network/marketplace/internal/chain"
	"github.com/R3E-Network/marketplace/internal/domain/marketplace"
	"github.com/R3E-Network/marketplace/internal/session"
	"github.com/R3E-Network/marketplace/pkg/logger"
)

// Fetcher names.
const (
	NameCatalog = "catalog"
	NameDetail  = "detail"
	NameProfile = "profile"
)

// =============================================================================
// Catalog
// =============================================================================

type catalogKey struct{}

// CatalogFetcher loads every listing. It has no input key.
type CatalogFetcher struct {
	*Fetcher[catalogKey, []marketplace.Product]
}

// NewCatalogFetcher creates an idle catalog fetcher.
func NewCatalogFetcher(reader chain.MarketplaceReader, log *logger.Logger) *CatalogFetcher {
	load := func(ctx context.Context, _ catalogKey) ([]marketplace.Product, error) {
		products, err := reader.GetAllProducts(ctx)
		if err != nil {
			return nil, err
		}
		if products == nil {
			products = []marketplace.Product{}
		}
		return products, nil
	}
	return &CatalogFetcher{New[catalogKey, []marketplace.Product](NameCatalog, load, log)}
}

// Load starts the first fetch; later calls are no-ops until a failure.
func (c *CatalogFetcher) Load() uint64 { return c.Set(catalogKey{}) }

// =============================================================================
// Product detail
// =============================================================================

// DetailFetcher loads one listing keyed by product id.
type DetailFetcher struct {
	*Fetcher[uint64, marketplace.Product]
}

// NewDetailFetcher creates an idle detail fetcher.
func NewDetailFetcher(reader chain.MarketplaceReader, log *logger.Logger) *DetailFetcher {
	return &DetailFetcher{New[uint64, marketplace.Product](NameDetail, reader.GetProductDetails, log)}
}

// SetProductID makes id current.
func (d *DetailFetcher) SetProductID(id uint64) uint64 { return d.Set(id) }

// =============================================================================
// Member profile
// =============================================================================

// ProfileFetcher loads a member profile and its reputation concurrently. The
// state fails only when the profile read fails; a failed reputation read
// degrades to a score of 0.
type ProfileFetcher struct {
	*Fetcher[string, marketplace.Profile]
}

// NewProfileFetcher creates an idle profile fetcher.
func NewProfileFetcher(reader chain.MarketplaceReader, log *logger.Logger) *ProfileFetcher {
	if log == nil {
		log = logger.NewDefault("fetch")
	}
	load := func(ctx context.Context, address string) (marketplace.Profile, error) {
		var (
			wg     sync.WaitGroup
			member marketplace.MemberProfile
			rep    marketplace.Reputation
			memErr error
			repErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			member, memErr = reader.GetMemberProfile(ctx, address)
		}()
		go func() {
			defer wg.Done()
			rep, repErr = reader.GetReputation(ctx, address)
		}()
		wg.Wait()

		if memErr != nil {
			return marketplace.Profile{}, memErr
		}
		out := marketplace.Profile{Address: address, Member: member, Reputation: rep}
		if repErr != nil {
			log.WithError(repErr).WithField("address", address).Warn("reputation unavailable, using score 0")
			out.Reputation = marketplace.Reputation{Score: 0}
			out.ReputationError = NewErrorInfo(repErr).Message
		}
		return out, nil
	}
	return &ProfileFetcher{New[string, marketplace.Profile](NameProfile, load, log)}
}

// SetAddress makes address current. An empty address resets to Idle.
func (p *ProfileFetcher) SetAddress(address string) uint64 {
	if address == "" {
		p.Reset()
		return p.State().Generation
	}
	return p.Set(address)
}

// FollowSession keeps the fetcher keyed by the connected wallet address. It
// returns a function that stops following.
func (p *ProfileFetcher) FollowSession(m *session.Manager) func() {
	unsubscribe := m.Subscribe(func(e session.Event) {
		if e.State == session.Connected && e.Address != "" {
			p.SetAddress(e.Address)
		}
	})
	if addr := m.Address(); addr != "" {
		p.SetAddress(addr)
	}
	return unsubscribe
}
