// Package view renders fetcher state into view models and text. It holds no
// entity data of its own: every render reads the fetchers afresh.
package view

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/R3E-Network/marketplace/internal/domain/marketplace"
	"github.com/R3E-Network/marketplace/internal/fetch"
	"github.com/R3E-Network/marketplace/internal/session"
	"github.com/R3E-Network/marketplace/pkg/logger"
)

// Placeholders shown instead of entity data.
const (
	LoadingText     = "Loading..."
	UnavailableText = "Unavailable"
	ConnectText     = "Connect Wallet"
)

// AppTitle heads every page.
const AppTitle = "Decentralized Marketplace"

// ProductView is one rendered listing.
type ProductView struct {
	ID          uint64 `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       uint64 `json:"price"`
	PriceLabel  string `json:"price_label"`
}

// CatalogView renders the product list.
type CatalogView struct {
	Status      fetch.Status     `json:"status"`
	Placeholder string           `json:"placeholder,omitempty"`
	Products    []ProductView    `json:"products"`
	Error       *fetch.ErrorInfo `json:"error,omitempty"`
}

// ProductDetailView renders one product.
type ProductDetailView struct {
	Status      fetch.Status     `json:"status"`
	Placeholder string           `json:"placeholder,omitempty"`
	Product     *ProductView     `json:"product,omitempty"`
	Purchasable bool             `json:"purchasable"`
	Error       *fetch.ErrorInfo `json:"error,omitempty"`
}

// ProfileView renders a member profile with its reputation.
type ProfileView struct {
	Status          fetch.Status     `json:"status"`
	Placeholder     string           `json:"placeholder,omitempty"`
	Address         string           `json:"address,omitempty"`
	Role            string           `json:"role,omitempty"`
	MemberStatus    string           `json:"member_status,omitempty"`
	Reputation      uint64           `json:"reputation"`
	ReputationError string           `json:"reputation_error,omitempty"`
	Error           *fetch.ErrorInfo `json:"error,omitempty"`
}

// HeaderView renders the session header.
type HeaderView struct {
	Title   string        `json:"title"`
	State   session.State `json:"state"`
	Address string        `json:"address,omitempty"`
	Action  string        `json:"action,omitempty"`
}

// PriceLabel formats a price in STX.
func PriceLabel(price uint64) string { return fmt.Sprintf("Price: %d STX", price) }

func productView(id uint64, p marketplace.Product) ProductView {
	return ProductView{
		ID:          id,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		PriceLabel:  PriceLabel(p.Price),
	}
}

// Composer builds views from the session and the fetchers. The only action
// it triggers is Connect, and only when asked to.
type Composer struct {
	session *session.Manager
	catalog *fetch.CatalogFetcher
	detail  *fetch.DetailFetcher
	profile *fetch.ProfileFetcher
	log     *logger.Logger

	mu sync.Mutex
	// logged remembers the last failed generation reported per fetcher.
	logged map[string]uint64
}

// NewComposer creates a composer. Any fetcher may be nil if the surface does
// not show it.
func NewComposer(sess *session.Manager, catalog *fetch.CatalogFetcher, detail *fetch.DetailFetcher, profile *fetch.ProfileFetcher, log *logger.Logger) *Composer {
	if log == nil {
		log = logger.NewDefault("view")
	}
	return &Composer{
		session: sess,
		catalog: catalog,
		detail:  detail,
		profile: profile,
		log:     log,
		logged:  make(map[string]uint64),
	}
}

// Connect is the explicit user action behind the connect button.
func (c *Composer) Connect(ctx context.Context) error {
	if c.session == nil {
		return fmt.Errorf("no session manager")
	}
	return c.session.Connect(ctx)
}

// Header renders the session header.
func (c *Composer) Header() HeaderView {
	h := HeaderView{Title: AppTitle, Action: ConnectText}
	if c.session == nil {
		return h
	}
	h.State = c.session.State()
	if addr := c.session.Address(); addr != "" {
		h.Address = addr
		h.Action = ""
	}
	return h
}

// Catalog renders the catalog fetcher.
func (c *Composer) Catalog() CatalogView {
	if c.catalog == nil {
		return CatalogView{Status: fetch.Idle, Placeholder: LoadingText, Products: []ProductView{}}
	}
	return c.RenderCatalog(c.catalog.State())
}

// RenderCatalog renders a catalog state. Product ids are list positions.
func (c *Composer) RenderCatalog(st fetch.State[[]marketplace.Product]) CatalogView {
	v := CatalogView{Status: st.Status, Products: []ProductView{}}
	switch st.Status {
	case fetch.Loaded:
		for i, p := range st.Value {
			v.Products = append(v.Products, productView(uint64(i), p))
		}
	case fetch.Failed:
		c.reportFailure(fetch.NameCatalog, st.Generation, st.Err)
		v.Placeholder = UnavailableText
		v.Error = st.Err
	default:
		v.Placeholder = LoadingText
	}
	return v
}

// Product renders the detail fetcher.
func (c *Composer) Product() ProductDetailView {
	if c.detail == nil {
		return ProductDetailView{Status: fetch.Idle, Placeholder: LoadingText}
	}
	id, _ := c.detail.Key()
	return c.RenderProduct(id, c.detail.State())
}

// RenderProduct renders a detail state for product id.
func (c *Composer) RenderProduct(id uint64, st fetch.State[marketplace.Product]) ProductDetailView {
	v := ProductDetailView{Status: st.Status}
	switch st.Status {
	case fetch.Loaded:
		pv := productView(id, st.Value)
		v.Product = &pv
		v.Purchasable = true
	case fetch.Failed:
		c.reportFailure(fetch.NameDetail, st.Generation, st.Err)
		v.Placeholder = UnavailableText
		v.Error = st.Err
	default:
		v.Placeholder = LoadingText
	}
	return v
}

// Profile renders the profile fetcher.
func (c *Composer) Profile() ProfileView {
	if c.profile == nil {
		return ProfileView{Status: fetch.Idle, Placeholder: LoadingText}
	}
	return c.RenderProfile(c.profile.State())
}

// RenderProfile renders a profile state.
func (c *Composer) RenderProfile(st fetch.State[marketplace.Profile]) ProfileView {
	v := ProfileView{Status: st.Status}
	switch st.Status {
	case fetch.Loaded:
		v.Address = st.Value.Address
		v.Role = st.Value.Member.Role
		v.MemberStatus = st.Value.Member.Status
		v.Reputation = st.Value.Reputation.Score
		v.ReputationError = st.Value.ReputationError
	case fetch.Failed:
		c.reportFailure(fetch.NameProfile, st.Generation, st.Err)
		v.Placeholder = UnavailableText
		v.Error = st.Err
	default:
		v.Placeholder = LoadingText
	}
	return v
}

// reportFailure logs each failed generation once.
func (c *Composer) reportFailure(name string, gen uint64, info *fetch.ErrorInfo) {
	c.mu.Lock()
	seen := c.logged[name] == gen
	c.logged[name] = gen
	c.mu.Unlock()
	if seen || info == nil {
		return
	}
	c.log.WithField("view", name).WithField("kind", info.Kind).WithField("code", info.Code).Warn(info.Message)
}

// =============================================================================
// Text rendering
// =============================================================================

// Text renders the header as a nav line.
func (h HeaderView) Text() string {
	if h.Address != "" {
		return fmt.Sprintf("%s  [%s]", h.Title, h.Address)
	}
	return fmt.Sprintf("%s  [%s]", h.Title, h.Action)
}

// Text renders the catalog.
func (v CatalogView) Text() string {
	var b strings.Builder
	b.WriteString("Products\n")
	if v.Placeholder != "" {
		b.WriteString(v.Placeholder + "\n")
		return b.String()
	}
	for _, p := range v.Products {
		fmt.Fprintf(&b, "#%d %s\n  %s\n  %s\n", p.ID, p.Title, p.Description, p.PriceLabel)
	}
	return b.String()
}

// Text renders a product detail.
func (v ProductDetailView) Text() string {
	if v.Product == nil {
		return v.Placeholder + "\n"
	}
	return fmt.Sprintf("%s\n%s\n%s\n", v.Product.Title, v.Product.Description, v.Product.PriceLabel)
}

// Text renders a profile.
func (v ProfileView) Text() string {
	if v.Placeholder != "" {
		return v.Placeholder + "\n"
	}
	return fmt.Sprintf("Profile\nRole: %s\nStatus: %s\nReputation: %d\n", v.Role, v.MemberStatus, v.Reputation)
}
