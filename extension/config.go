package extension

import "time"

// Config holds the credits extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.credits" or "credits" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// TrialAllotment is the credit balance of a new free user (default: 20).
	TrialAllotment int64 `json:"trial_allotment" mapstructure:"trial_allotment" yaml:"trial_allotment"`

	// RemoteTimeout bounds each remote store call (default: 3s).
	RemoteTimeout time.Duration `json:"remote_timeout" mapstructure:"remote_timeout" yaml:"remote_timeout"`

	// WriteBehindBatchSize enables the write-behind worker when positive. It
	// is the number of pending users that triggers an early flush.
	WriteBehindBatchSize int `json:"write_behind_batch_size" mapstructure:"write_behind_batch_size" yaml:"write_behind_batch_size"`

	// WriteBehindInterval is how frequently pending writes are flushed
	// (default: 5s).
	WriteBehindInterval time.Duration `json:"write_behind_interval" mapstructure:"write_behind_interval" yaml:"write_behind_interval"`

	// RedisURL selects the Redis cache when set, e.g. "redis://localhost:6379/0".
	// Otherwise an in-process cache is used.
	RedisURL string `json:"redis_url" mapstructure:"redis_url" yaml:"redis_url"`

	// CacheNamespace prefixes cache keys (default: "entitlement").
	CacheNamespace string `json:"cache_namespace" mapstructure:"cache_namespace" yaml:"cache_namespace"`

	// CacheTTL expires Redis cache entries. Zero keeps them indefinitely.
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// StripeAPIKey enables Stripe Checkout as the payment gateway.
	StripeAPIKey string `json:"stripe_api_key" mapstructure:"stripe_api_key" yaml:"stripe_api_key"`

	// StripeSuccessURL and StripeCancelURL are the checkout redirect targets.
	StripeSuccessURL string `json:"stripe_success_url" mapstructure:"stripe_success_url" yaml:"stripe_success_url"`
	StripeCancelURL  string `json:"stripe_cancel_url" mapstructure:"stripe_cancel_url" yaml:"stripe_cancel_url"`

	// VerifyPayments confirms every completed Stripe payment server-side
	// before the upgrade is granted.
	VerifyPayments bool `json:"verify_payments" mapstructure:"verify_payments" yaml:"verify_payments"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TrialAllotment:      20,
		RemoteTimeout:       3 * time.Second,
		WriteBehindInterval: 5 * time.Second,
		CacheNamespace:      "entitlement",
	}
}
