// Package chain provides read-only access to Stacks smart contracts.
package chain

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/R3E-Network/marketplace/pkg/logger"
)

// Network selects which Stacks chain a query targets.
type Network string

const (
	Testnet Network = "testnet"
	Mainnet Network = "mainnet"
)

// Default public API nodes per network.
const (
	DefaultTestnetURL = "https://api.testnet.hiro.so"
	DefaultMainnetURL = "https://api.mainnet.hiro.so"
)

// ParseNetwork accepts "testnet" or "mainnet" in any case.
func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(s))) {
	case Testnet:
		return Testnet, nil
	case Mainnet:
		return Mainnet, nil
	default:
		return "", fmt.Errorf("unknown network %q (want testnet or mainnet)", s)
	}
}

// DefaultURL returns the public node for the network.
func (n Network) DefaultURL() string {
	if n == Mainnet {
		return DefaultMainnetURL
	}
	return DefaultTestnetURL
}

// Client executes read-only contract calls against Stacks nodes.
type Client struct {
	nodeURLs   map[Network]string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	log        *logger.Logger
}

// Config holds client configuration. Zero values mean: public node URLs, no
// timeout, no retries and no rate limit.
type Config struct {
	// TestnetURL and MainnetURL override the public nodes.
	TestnetURL string
	MainnetURL string
	// Timeout bounds a single HTTP exchange. Zero disables it.
	Timeout time.Duration
	// MaxRetries re-issues a call after a network failure. Contract and
	// decode failures are never retried.
	MaxRetries int
	RetryDelay time.Duration
	// RateLimit caps calls per second; Burst defaults to 1.
	RateLimit float64
	Burst     int
	// HTTPClient replaces the default transport, mainly for tests.
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// NewClient creates a new read-only client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative")
	}

	urls := map[Network]string{
		Testnet: Testnet.DefaultURL(),
		Mainnet: Mainnet.DefaultURL(),
	}
	if cfg.TestnetURL != "" {
		urls[Testnet] = strings.TrimRight(cfg.TestnetURL, "/")
	}
	if cfg.MainnetURL != "" {
		urls[Mainnet] = strings.TrimRight(cfg.MainnetURL, "/")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("chain")
	}

	return &Client{
		nodeURLs:   urls,
		httpClient: httpClient,
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		log:        log,
	}, nil
}

// NodeURL reports the node used for a network.
func (c *Client) NodeURL(n Network) string {
	if u, ok := c.nodeURLs[n]; ok {
		return u
	}
	return n.DefaultURL()
}
