// Package config loads marketplace client configuration from defaults, an
// optional YAML file, an optional .env file and MARKETPLACE_* variables, in
// that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/marketplace/internal/chain"
	"github.com/R3E-Network/marketplace/internal/clarity"
	"github.com/R3E-Network/marketplace/pkg/logger"
)

// Session backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// DefaultConfigPath is read when it exists and no path is given.
const DefaultConfigPath = "config/marketplace.yaml"

// ContractConfig pins the deployed marketplace contract.
type ContractConfig struct {
	Address       string `yaml:"address" env:"MARKETPLACE_CONTRACT_ADDRESS"`
	Name          string `yaml:"name" env:"MARKETPLACE_CONTRACT_NAME"`
	SenderAddress string `yaml:"sender_address" env:"MARKETPLACE_SENDER_ADDRESS"`
}

// WalletConfig identifies the app to the wallet.
type WalletConfig struct {
	AppName string `yaml:"app_name" env:"MARKETPLACE_WALLET_APP_NAME"`
	AppIcon string `yaml:"app_icon" env:"MARKETPLACE_WALLET_APP_ICON"`
}

// QueryConfig tunes read-only calls. Zero means no timeout, no retry and no
// rate limit.
type QueryConfig struct {
	Timeout    time.Duration `yaml:"timeout" env:"MARKETPLACE_QUERY_TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"MARKETPLACE_QUERY_MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"MARKETPLACE_QUERY_RETRY_DELAY"`
	RateLimit  float64       `yaml:"rate_limit" env:"MARKETPLACE_QUERY_RATE_LIMIT"`
	Burst      int           `yaml:"burst" env:"MARKETPLACE_QUERY_BURST"`
}

// SessionConfig selects where the wallet session is persisted.
type SessionConfig struct {
	Backend   string `yaml:"backend" env:"MARKETPLACE_SESSION_BACKEND"`
	Path      string `yaml:"path" env:"MARKETPLACE_SESSION_PATH"`
	RedisAddr string `yaml:"redis_addr" env:"MARKETPLACE_SESSION_REDIS_ADDR"`
	RedisKey  string `yaml:"redis_key" env:"MARKETPLACE_SESSION_REDIS_KEY"`
}

// RefreshConfig schedules background catalog refreshes. Empty disables.
type RefreshConfig struct {
	CatalogSchedule string `yaml:"catalog_schedule" env:"MARKETPLACE_CATALOG_SCHEDULE"`
}

// HTTPConfig configures the HTTP view surface.
type HTTPConfig struct {
	ListenAddr     string   `yaml:"listen_addr" env:"MARKETPLACE_HTTP_ADDR"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// RateLimit caps requests per second per client. Zero disables it.
	RateLimit float64 `yaml:"rate_limit" env:"MARKETPLACE_HTTP_RATE_LIMIT"`
	Burst     int     `yaml:"burst" env:"MARKETPLACE_HTTP_BURST"`
}

// Config is the full client configuration.
type Config struct {
	Network  string               `yaml:"network" env:"MARKETPLACE_NETWORK"`
	NodeURL  string               `yaml:"node_url" env:"MARKETPLACE_NODE_URL"`
	Contract ContractConfig       `yaml:"contract"`
	Wallet   WalletConfig         `yaml:"wallet"`
	Query    QueryConfig          `yaml:"query"`
	Session  SessionConfig        `yaml:"session"`
	Refresh  RefreshConfig        `yaml:"refresh"`
	HTTP     HTTPConfig           `yaml:"http"`
	Logging  logger.LoggingConfig `yaml:"logging"`
}

// Default returns the built-in configuration. The contract identity has no
// default and must be supplied.
func Default() Config {
	return Config{
		Network: string(chain.Testnet),
		Wallet: WalletConfig{
			AppName: "Decentralized Marketplace",
			AppIcon: "https://example.com/icon.png",
		},
		Session: SessionConfig{
			Backend: BackendFile,
			Path:    ".marketplace/session.json",
		},
		HTTP: HTTPConfig{ListenAddr: ":8080"},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Options control where Load looks.
type Options struct {
	// Path of the YAML file. Empty tries DefaultConfigPath.
	Path string
	// EnvFile is a dotenv file loaded before decoding the environment.
	// Empty tries ".env". Variables already set are not overridden.
	EnvFile string
}

// Load builds the configuration and validates it.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	path, required := opts.Path, true
	if path == "" {
		path, required = DefaultConfigPath, false
	}
	if err := cfg.mergeYAML(path, required); err != nil {
		return nil, err
	}

	envFile, required := opts.EnvFile, true
	if envFile == "" {
		envFile, required = ".env", false
	}
	if err := godotenv.Load(envFile); err != nil && (required || !errors.Is(err, os.ErrNotExist)) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) mergeYAML(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Network = strings.ToLower(strings.TrimSpace(c.Network))
	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	c.Contract.Address = strings.TrimSpace(c.Contract.Address)
	c.Contract.Name = strings.TrimSpace(c.Contract.Name)
	c.Contract.SenderAddress = strings.TrimSpace(c.Contract.SenderAddress)
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	network, err := chain.ParseNetwork(c.Network)
	if err != nil {
		return err
	}
	if c.Contract.Address == "" {
		return fmt.Errorf("contract.address is required")
	}
	if c.Contract.Name == "" {
		return fmt.Errorf("contract.name is required")
	}
	if err := checkAddress("contract.address", c.Contract.Address, network); err != nil {
		return err
	}
	if c.Contract.SenderAddress != "" {
		if err := checkAddress("contract.sender_address", c.Contract.SenderAddress, network); err != nil {
			return err
		}
	}
	if c.Query.Timeout < 0 || c.Query.RetryDelay < 0 {
		return fmt.Errorf("query durations must not be negative")
	}
	if c.Query.MaxRetries < 0 {
		return fmt.Errorf("query.max_retries must not be negative")
	}
	if c.Query.RateLimit < 0 || c.Query.Burst < 0 {
		return fmt.Errorf("query rate limit must not be negative")
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.Burst < 0 {
		return fmt.Errorf("http rate limit must not be negative")
	}
	switch c.Session.Backend {
	case BackendFile:
		if c.Session.Path == "" {
			return fmt.Errorf("session.path is required for the file backend")
		}
	case BackendRedis:
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	return nil
}

func checkAddress(field, addr string, network chain.Network) error {
	version, _, err := clarity.DecodeAddress(addr)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if clarity.IsMainnetVersion(version) != (network == chain.Mainnet) {
		return fmt.Errorf("%s %s does not belong to %s", field, addr, network)
	}
	return nil
}

// ChainNetwork returns the parsed network. Call after Validate.
func (c *Config) ChainNetwork() chain.Network {
	n, _ := chain.ParseNetwork(c.Network)
	return n
}

// Identity returns the contract identity queries target.
func (c *Config) Identity() chain.ContractIdentity {
	return chain.ContractIdentity{
		Address:       c.Contract.Address,
		Name:          c.Contract.Name,
		SenderAddress: c.Contract.SenderAddress,
		Network:       c.ChainNetwork(),
	}
}

// ChainConfig maps query settings onto the node client configuration. The
// node URL, when set, overrides the selected network's public node.
func (c *Config) ChainConfig(log *logger.Logger) chain.Config {
	cc := chain.Config{
		Timeout:    c.Query.Timeout,
		MaxRetries: c.Query.MaxRetries,
		RetryDelay: c.Query.RetryDelay,
		RateLimit:  c.Query.RateLimit,
		Burst:      c.Query.Burst,
		Logger:     log,
	}
	if c.NodeURL != "" {
		if c.ChainNetwork() == chain.Mainnet {
			cc.MainnetURL = c.NodeURL
		} else {
			cc.TestnetURL = c.NodeURL
		}
	}
	return cc
}
