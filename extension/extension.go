// Package extension provides the Forge extension adapter for credits.
//
// It implements the forge.Extension interface to integrate credits
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.credits" or "credits" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/credits"
	memorycache "github.com/xraph/credits/cache/memory"
	rediscache "github.com/xraph/credits/cache/redis"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/observability"
	stripegateway "github.com/xraph/credits/payment/stripe"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "credits"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Entitlement and credit metering engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts credits as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *credits.Engine
	store       store.Store
	cache       entitlement.Cache
	gateway     *stripegateway.Gateway
	rdb         *redis.Client
	metricsReg  prometheus.Registerer
	creditsOpts []credits.Option
}

// New creates a new credits Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying credits engine.
// This is nil until Register is called.
func (e *Extension) Engine() *credits.Engine { return e.engine }

// Gateway returns the Stripe gateway, or nil when Stripe is not configured.
// HTTP handlers for the success and cancel URLs resolve sessions through it.
func (e *Extension) Gateway() *stripegateway.Gateway { return e.gateway }

// Register implements [forge.Extension]. It loads configuration,
// initializes the credits engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*credits.Engine, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.gateway != nil {
		return vessel.Provide(fapp.Container(), func() (*stripegateway.Gateway, error) {
			return e.gateway, nil
		})
	}
	return nil
}

// build constructs the store, cache, gateway and engine from the resolved
// config.
func (e *Extension) build() error {
	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	if e.cache == nil {
		c, err := e.buildCache()
		if err != nil {
			return err
		}
		e.cache = c
	}

	if e.config.StripeAPIKey != "" {
		e.gateway = stripegateway.New(stripegateway.Config{
			APIKey:     e.config.StripeAPIKey,
			SuccessURL: e.config.StripeSuccessURL,
			CancelURL:  e.config.StripeCancelURL,
		})
	}

	e.engine = credits.New(e.store, e.cache, e.buildCreditsOpts()...)
	return nil
}

func (e *Extension) buildCache() (entitlement.Cache, error) {
	if e.config.RedisURL == "" {
		return memorycache.New(e.config.CacheNamespace), nil
	}

	opt, err := redis.ParseURL(e.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("credits: parse redis url: %w", err)
	}
	e.rdb = redis.NewClient(opt)
	return rediscache.New(e.rdb, e.config.CacheNamespace, e.config.CacheTTL), nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("credits: extension not initialized")
	}

	if e.rdb != nil {
		if err := e.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("credits: redis ping: %w", err)
		}
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs credits.MultiError
	if e.engine != nil {
		errs.Add(e.engine.Stop())
	}
	if e.rdb != nil {
		errs.Add(e.rdb.Close())
	}
	e.MarkStopped()

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("credits: engine not initialized")
	}
	if err := e.engine.Ping(ctx); err != nil {
		return err
	}
	if e.rdb != nil {
		return e.rdb.Ping(ctx).Err()
	}
	return nil
}

// buildCreditsOpts constructs credits.Option values from the resolved config.
func (e *Extension) buildCreditsOpts() []credits.Option {
	opts := make([]credits.Option, 0, len(e.creditsOpts)+7)

	// Apply config-derived options.
	if e.config.TrialAllotment > 0 {
		opts = append(opts, credits.WithTrialAllotment(e.config.TrialAllotment))
	}
	if e.config.RemoteTimeout > 0 {
		opts = append(opts, credits.WithRemoteTimeout(e.config.RemoteTimeout))
	}
	if e.config.WriteBehindBatchSize > 0 {
		opts = append(opts, credits.WithWriteBehind(e.config.WriteBehindBatchSize, e.config.WriteBehindInterval))
	}
	if e.config.DisableMigrate {
		opts = append(opts, credits.WithoutMigrate())
	}

	if e.gateway != nil {
		opts = append(opts, credits.WithGateway(e.gateway))
		if e.config.VerifyPayments {
			opts = append(opts, credits.WithVerifier(e.gateway))
		}
	}

	if e.metricsReg != nil {
		metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(e.metricsReg))
		opts = append(opts, credits.WithPlugin(metrics))
	}

	// Append any pass-through credits options.
	opts = append(opts, e.creditsOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("credits: configuration is required but not found in config files; " +
				"ensure 'extensions.credits' or 'credits' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("credits: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("trial_allotment", e.config.TrialAllotment),
		forge.F("remote_timeout", e.config.RemoteTimeout),
		forge.F("write_behind_batch_size", e.config.WriteBehindBatchSize),
		forge.F("write_behind_interval", e.config.WriteBehindInterval),
		forge.F("redis", e.config.RedisURL != ""),
		forge.F("stripe", e.config.StripeAPIKey != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.credits" first (namespaced pattern).
	if cm.IsSet("extensions.credits") {
		if err := cm.Bind("extensions.credits", &cfg); err == nil {
			e.Logger().Debug("credits: loaded config from file",
				forge.F("key", "extensions.credits"),
			)
			return cfg, true
		}
		e.Logger().Warn("credits: failed to bind extensions.credits config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "credits" key.
	if cm.IsSet("credits") {
		if err := cm.Bind("credits", &cfg); err == nil {
			e.Logger().Debug("credits: loaded config from file",
				forge.F("key", "credits"),
			)
			return cfg, true
		}
		e.Logger().Warn("credits: failed to bind credits config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.TrialAllotment == 0 {
		cfg.TrialAllotment = defaults.TrialAllotment
	}
	if cfg.RemoteTimeout == 0 {
		cfg.RemoteTimeout = defaults.RemoteTimeout
	}
	if cfg.WriteBehindInterval == 0 {
		cfg.WriteBehindInterval = defaults.WriteBehindInterval
	}
	if cfg.CacheNamespace == "" {
		cfg.CacheNamespace = defaults.CacheNamespace
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.VerifyPayments {
		yamlConfig.VerifyPayments = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.RedisURL == "" {
		yamlConfig.RedisURL = programmaticConfig.RedisURL
	}
	if yamlConfig.CacheNamespace == "" {
		yamlConfig.CacheNamespace = programmaticConfig.CacheNamespace
	}
	if yamlConfig.StripeAPIKey == "" {
		yamlConfig.StripeAPIKey = programmaticConfig.StripeAPIKey
	}
	if yamlConfig.StripeSuccessURL == "" {
		yamlConfig.StripeSuccessURL = programmaticConfig.StripeSuccessURL
	}
	if yamlConfig.StripeCancelURL == "" {
		yamlConfig.StripeCancelURL = programmaticConfig.StripeCancelURL
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.TrialAllotment == 0 && programmaticConfig.TrialAllotment != 0 {
		yamlConfig.TrialAllotment = programmaticConfig.TrialAllotment
	}
	if yamlConfig.RemoteTimeout == 0 && programmaticConfig.RemoteTimeout != 0 {
		yamlConfig.RemoteTimeout = programmaticConfig.RemoteTimeout
	}
	if yamlConfig.WriteBehindBatchSize == 0 && programmaticConfig.WriteBehindBatchSize != 0 {
		yamlConfig.WriteBehindBatchSize = programmaticConfig.WriteBehindBatchSize
	}
	if yamlConfig.WriteBehindInterval == 0 && programmaticConfig.WriteBehindInterval != 0 {
		yamlConfig.WriteBehindInterval = programmaticConfig.WriteBehindInterval
	}
	if yamlConfig.CacheTTL == 0 && programmaticConfig.CacheTTL != 0 {
		yamlConfig.CacheTTL = programmaticConfig.CacheTTL
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
