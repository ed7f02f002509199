package extension

import "time"

// Config holds the Punchcard extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.punchcard" or "punchcard" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// SweepInterval is how frequently the background expiry sweep runs.
	// Zero disables the sweep worker (default: 1m).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// SweepBatchSize is how many expired packages one sweep pass
	// transitions (default: 100).
	SweepBatchSize int `json:"sweep_batch_size" mapstructure:"sweep_batch_size" yaml:"sweep_batch_size"`

	// ConflictRetries is how many times deductions and cancellations are
	// re-run after an optimistic transaction conflict (default: 3).
	ConflictRetries uint `json:"conflict_retries" mapstructure:"conflict_retries" yaml:"conflict_retries"`

	// StripeSecretKey, when set, constructs a Stripe-backed refund
	// processor for the engine.
	StripeSecretKey string `json:"stripe_secret_key" mapstructure:"stripe_secret_key" yaml:"stripe_secret_key"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval:   time.Minute,
		SweepBatchSize:  100,
		ConflictRetries: 3,
	}
}
