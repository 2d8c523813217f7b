package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all process configuration. It is built once at startup and
// passed into components; nothing reads the environment after Load returns.
type Config struct {
	// Telegram
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	OwnerID  int64  `envconfig:"ADMIN_USER_ID"`

	// Balance providers
	MoralisAPIKey   string        `envconfig:"MORALIS_API_KEY"`
	EtherscanAPIKey string        `envconfig:"ETHERSCAN_API_KEY"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`

	// Storage: DATABASE_URL selects the database backend, otherwise
	// documents live as JSON files under DataDir.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DataDir     string `envconfig:"DATA_DIR" default:"."`

	// Reverification. Zero interval means the pass only runs via cmd/verify
	// under an external scheduler.
	ReverifyInterval time.Duration `envconfig:"REVERIFY_INTERVAL" default:"0"`

	// RemovalFailureRatio suspends removals in a group once the share of
	// provider failures among checked members exceeds it. Zero disables
	// the breaker.
	RemovalFailureRatio float64 `envconfig:"REMOVAL_FAILURE_RATIO" default:"0"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	return &cfg, nil
}

// IsOwner reports whether a member ID (string form, as stored) is the
// configured owner. Owners are permanently exempt from enforcement.
func (c *Config) IsOwner(memberID string) bool {
	if c.OwnerID == 0 {
		return false
	}
	id, err := strconv.ParseInt(memberID, 10, 64)
	if err != nil {
		return false
	}
	return id == c.OwnerID
}
