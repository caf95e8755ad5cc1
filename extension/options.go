package extension

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
)

// Option configures the credits Forge extension.
type Option func(*Extension)

// WithStore sets the remote store for the credits engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithCache sets the local cache, overriding RedisURL.
func WithCache(c entitlement.Cache) Option {
	return func(e *Extension) {
		e.cache = c
	}
}

// WithCreditsOption passes a credits.Option through to the underlying engine.
func WithCreditsOption(opt credits.Option) Option {
	return func(e *Extension) {
		e.creditsOpts = append(e.creditsOpts, opt)
	}
}

// WithPlugin registers a credits plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.creditsOpts = append(e.creditsOpts, credits.WithPlugin(p))
	}
}

// WithMetrics registers the Prometheus metrics plugin with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Extension) {
		e.metricsReg = reg
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithTrialAllotment sets the balance of new free users.
func WithTrialAllotment(n int64) Option {
	return func(e *Extension) { e.config.TrialAllotment = n }
}

// WithRemoteTimeout bounds each remote store call.
func WithRemoteTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.RemoteTimeout = d }
}

// WithWriteBehind enables the write-behind worker.
func WithWriteBehind(batchSize int, interval time.Duration) Option {
	return func(e *Extension) {
		e.config.WriteBehindBatchSize = batchSize
		e.config.WriteBehindInterval = interval
	}
}

// WithRedisURL selects the Redis cache.
func WithRedisURL(url string) Option {
	return func(e *Extension) { e.config.RedisURL = url }
}

// WithStripe enables Stripe Checkout.
func WithStripe(apiKey, successURL, cancelURL string) Option {
	return func(e *Extension) {
		e.config.StripeAPIKey = apiKey
		e.config.StripeSuccessURL = successURL
		e.config.StripeCancelURL = cancelURL
	}
}

// WithVerifyPayments confirms every Stripe payment before upgrading.
func WithVerifyPayments() Option {
	return func(e *Extension) { e.config.VerifyPayments = true }
}
