// Package extension provides the Forge extension adapter for Punchcard.
//
// It implements the forge.Extension interface to integrate Punchcard
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.punchcard" or
// "punchcard" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	punchcard "github.com/xraph/punchcard"
	stripeproc "github.com/xraph/punchcard/payment/stripe"
	"github.com/xraph/punchcard/store"
	"github.com/xraph/punchcard/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "punchcard"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Prepaid package ledger and refund reconciliation engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Punchcard as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *punchcard.Engine
	store      store.Store
	engineOpts []punchcard.Option
}

// New creates a new Punchcard Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Punchcard instance.
// This is nil until Register is called.
func (e *Extension) Engine() *punchcard.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts := e.buildEngineOpts()

	eng := punchcard.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*punchcard.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("punchcard: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("punchcard: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs punchcard.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []punchcard.Option {
	opts := make([]punchcard.Option, 0, len(e.engineOpts)+3)

	opts = append(opts, punchcard.WithExpirySweep(e.config.SweepInterval, e.config.SweepBatchSize))
	if e.config.ConflictRetries > 0 {
		opts = append(opts, punchcard.WithConflictRetries(e.config.ConflictRetries))
	}
	if e.config.StripeSecretKey != "" {
		opts = append(opts, punchcard.WithProcessor(stripeproc.New(e.config.StripeSecretKey)))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("punchcard: configuration is required but not found in config files; " +
				"ensure 'extensions.punchcard' or 'punchcard' key exists in your config")
		}

		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("punchcard: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("sweep_batch_size", e.config.SweepBatchSize),
		forge.F("conflict_retries", e.config.ConflictRetries),
		forge.F("stripe_configured", e.config.StripeSecretKey != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.punchcard" first (namespaced pattern).
	if cm.IsSet("extensions.punchcard") {
		if err := cm.Bind("extensions.punchcard", &cfg); err == nil {
			e.Logger().Debug("punchcard: loaded config from file",
				forge.F("key", "extensions.punchcard"),
			)
			return cfg, true
		}
		e.Logger().Warn("punchcard: failed to bind extensions.punchcard config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "punchcard" key.
	if cm.IsSet("punchcard") {
		if err := cm.Bind("punchcard", &cfg); err == nil {
			e.Logger().Debug("punchcard: loaded config from file",
				forge.F("key", "punchcard"),
			)
			return cfg, true
		}
		e.Logger().Warn("punchcard: failed to bind punchcard config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.SweepBatchSize == 0 {
		cfg.SweepBatchSize = defaults.SweepBatchSize
	}
	if cfg.ConflictRetries == 0 {
		cfg.ConflictRetries = defaults.ConflictRetries
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.StripeSecretKey == "" && programmaticConfig.StripeSecretKey != "" {
		yamlConfig.StripeSecretKey = programmaticConfig.StripeSecretKey
	}

	if yamlConfig.SweepInterval == 0 && programmaticConfig.SweepInterval != 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.SweepBatchSize == 0 && programmaticConfig.SweepBatchSize != 0 {
		yamlConfig.SweepBatchSize = programmaticConfig.SweepBatchSize
	}
	if yamlConfig.ConflictRetries == 0 && programmaticConfig.ConflictRetries != 0 {
		yamlConfig.ConflictRetries = programmaticConfig.ConflictRetries
	}

	return e.mergeWithDefaults(yamlConfig)
}
