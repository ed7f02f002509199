package extension

import (
	"time"

	punchcard "github.com/xraph/punchcard"
	"github.com/xraph/punchcard/payment"
	"github.com/xraph/punchcard/plugin"
	"github.com/xraph/punchcard/store"
)

// Option configures the Punchcard Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a punchcard.Option through to the underlying engine.
func WithEngineOption(opt punchcard.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an engine plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, punchcard.WithPlugin(p))
	}
}

// WithProcessor sets the refund processor, overriding any Stripe key in
// config.
func WithProcessor(p payment.Processor) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, punchcard.WithProcessor(p))
	}
}

// WithAuthorizer sets the billing authorization hook.
func WithAuthorizer(a punchcard.Authorizer) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, punchcard.WithAuthorizer(a))
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

// WithSweepInterval sets how frequently the expiry sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithSweepBatchSize sets how many packages one sweep pass transitions.
func WithSweepBatchSize(size int) Option {
	return func(e *Extension) { e.config.SweepBatchSize = size }
}

// WithConflictRetries sets the optimistic conflict retry limit.
func WithConflictRetries(n uint) Option {
	return func(e *Extension) { e.config.ConflictRetries = n }
}

// WithStripeSecretKey configures a Stripe-backed refund processor.
func WithStripeSecretKey(key string) Option {
	return func(e *Extension) { e.config.StripeSecretKey = key }
}
