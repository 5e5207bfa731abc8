package chain

import (
	"context"
	"fmt"

	"github.com/R3E-Network/marketplace/internal/clarity"
	"github.com/R3E-Network/marketplace/internal/domain/marketplace"
)

// Marketplace contract read-only functions.
const (
	FnGetAllProducts    = "get-all-products"
	FnGetProductDetails = "get-product-details"
	FnGetMemberProfile  = "get-member-profile"
	FnGetReputation     = "get-reputation"
)

// MarketplaceReader is what the fetchers need from the contract.
type MarketplaceReader interface {
	GetAllProducts(ctx context.Context) ([]marketplace.Product, error)
	GetProductDetails(ctx context.Context, productID uint64) (marketplace.Product, error)
	GetMemberProfile(ctx context.Context, address string) (marketplace.MemberProfile, error)
	GetReputation(ctx context.Context, address string) (marketplace.Reputation, error)
}

// MarketplaceContract provides typed access to the marketplace contract.
type MarketplaceContract struct {
	caller   ReadOnlyCaller
	identity ContractIdentity
}

var _ MarketplaceReader = (*MarketplaceContract)(nil)

// NewMarketplaceContract creates a new marketplace contract interface.
func NewMarketplaceContract(caller ReadOnlyCaller, identity ContractIdentity) *MarketplaceContract {
	return &MarketplaceContract{caller: caller, identity: identity}
}

// Identity returns the contract this binding targets.
func (m *MarketplaceContract) Identity() ContractIdentity { return m.identity }

// GetAllProducts returns every listing in contract order.
func (m *MarketplaceContract) GetAllProducts(ctx context.Context) ([]marketplace.Product, error) {
	return Invoke(ctx, m.caller, m.identity.Query(FnGetAllProducts), "products", ParseProducts)
}

// GetProductDetails returns one listing.
func (m *MarketplaceContract) GetProductDetails(ctx context.Context, productID uint64) (marketplace.Product, error) {
	return Invoke(ctx, m.caller, m.identity.Query(FnGetProductDetails, clarity.EncodeUint(productID)),
		fmt.Sprintf("product %d", productID), ParseProduct)
}

// GetMemberProfile returns the profile registered for address.
func (m *MarketplaceContract) GetMemberProfile(ctx context.Context, address string) (marketplace.MemberProfile, error) {
	return Invoke(ctx, m.caller, m.identity.Query(FnGetMemberProfile, clarity.EncodePrincipal(address)),
		"member profile", ParseMemberProfile)
}

// GetReputation returns the reputation score for address.
func (m *MarketplaceContract) GetReputation(ctx context.Context, address string) (marketplace.Reputation, error) {
	return Invoke(ctx, m.caller, m.identity.Query(FnGetReputation, clarity.EncodePrincipal(address)),
		"reputation", ParseReputation)
}
