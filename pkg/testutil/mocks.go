// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/marketplace/internal/domain/marketplace"
	svcerrors "github.com/R3E-Network/marketplace/internal/errors"
	"github.com/R3E-Network/marketplace/internal/session"
)

// =============================================================================
// Contract reader stub
// =============================================================================

// StubReader is an in-memory marketplace contract. Calls can be held open
// with Hold to script response ordering.
type StubReader struct {
	mu          sync.Mutex
	products    []marketplace.Product
	productsErr error
	details     map[uint64]marketplace.Product
	profiles    map[string]marketplace.MemberProfile
	reputations map[string]uint64
	errs        map[string]error
	gates       map[string]chan struct{}
	calls       map[string]int
}

// NewStubReader creates an empty stub. Unknown products and profiles answer
// with a not-found error.
func NewStubReader() *StubReader {
	return &StubReader{
		details:     make(map[uint64]marketplace.Product),
		profiles:    make(map[string]marketplace.MemberProfile),
		reputations: make(map[string]uint64),
		errs:        make(map[string]error),
		gates:       make(map[string]chan struct{}),
		calls:       make(map[string]int),
	}
}

// Call keys used by Hold, Fail and Calls.
func ProductsKey() string                 { return "products" }
func DetailKey(id uint64) string          { return fmt.Sprintf("detail:%d", id) }
func ProfileKey(address string) string    { return "profile:" + address }
func ReputationKey(address string) string { return "reputation:" + address }

// SetProducts sets the catalog.
func (s *StubReader) SetProducts(products ...marketplace.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = products
	for i, p := range products {
		s.details[uint64(i)] = p
	}
}

// SetProduct sets one product detail.
func (s *StubReader) SetProduct(id uint64, p marketplace.Product) {
	s.mu.Lock()
	s.details[id] = p
	s.mu.Unlock()
}

// SetProfile sets a member profile and reputation.
func (s *StubReader) SetProfile(address string, p marketplace.MemberProfile, score uint64) {
	s.mu.Lock()
	s.profiles[address] = p
	s.reputations[address] = score
	s.mu.Unlock()
}

// Fail makes calls for key return err until cleared with a nil err.
func (s *StubReader) Fail(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, key)
		return
	}
	s.errs[key] = err
}

// Hold blocks calls for key until the returned release func is called.
// Held calls ignore context cancellation, like a node that answers anyway.
func (s *StubReader) Hold(key string) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates[key] = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[key] == gate {
				delete(s.gates, key)
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many calls were made for key.
func (s *StubReader) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *StubReader) enter(key string) error {
	s.mu.Lock()
	s.calls[key]++
	gate := s.gates[key]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[key]
}

func (s *StubReader) GetAllProducts(ctx context.Context) ([]marketplace.Product, error) {
	if err := s.enter(ProductsKey()); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]marketplace.Product, len(s.products))
	copy(out, s.products)
	return out, nil
}

func (s *StubReader) GetProductDetails(ctx context.Context, productID uint64) (marketplace.Product, error) {
	if err := s.enter(DetailKey(productID)); err != nil {
		return marketplace.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.details[productID]
	if !ok {
		return marketplace.Product{}, svcerrors.NotFound(fmt.Sprintf("product %d", productID))
	}
	return p, nil
}

func (s *StubReader) GetMemberProfile(ctx context.Context, address string) (marketplace.MemberProfile, error) {
	if err := s.enter(ProfileKey(address)); err != nil {
		return marketplace.MemberProfile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[address]
	if !ok {
		return marketplace.MemberProfile{}, svcerrors.NotFound("member profile")
	}
	return p, nil
}

func (s *StubReader) GetReputation(ctx context.Context, address string) (marketplace.Reputation, error) {
	if err := s.enter(ReputationKey(address)); err != nil {
		return marketplace.Reputation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return marketplace.Reputation{Score: s.reputations[address]}, nil
}

// =============================================================================
// Wallet connector
// =============================================================================

// RecordingConnector counts connector invocations. Completion is driven by
// the test through Finish.
type RecordingConnector struct {
	Store session.Store

	mu       sync.Mutex
	requests []session.ConnectRequest
	startErr error
}

// NewRecordingConnector creates a connector that writes to store on Finish.
func NewRecordingConnector(store session.Store) *RecordingConnector {
	return &RecordingConnector{Store: store}
}

// FailStart makes the next Connect calls return err synchronously.
func (c *RecordingConnector) FailStart(err error) {
	c.mu.Lock()
	c.startErr = err
	c.mu.Unlock()
}

func (c *RecordingConnector) Connect(ctx context.Context, req session.ConnectRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	return c.startErr
}

// Invocations returns how many times Connect was called.
func (c *RecordingConnector) Invocations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// LastRequest returns the most recent request.
func (c *RecordingConnector) LastRequest() (session.ConnectRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return session.ConnectRequest{}, false
	}
	return c.requests[len(c.requests)-1], true
}

// Finish completes the latest flow. A non-empty address is written to the
// store first, as a wallet would.
func (c *RecordingConnector) Finish(ctx context.Context, address string, flowErr error) error {
	req, ok := c.LastRequest()
	if !ok {
		return fmt.Errorf("connect was never called")
	}
	if address != "" && c.Store != nil {
		if err := c.Store.Save(ctx, session.WalletSession{Connected: true, Address: address}); err != nil {
			return err
		}
	}
	req.OnFinish(flowErr)
	return nil
}
