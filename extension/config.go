package extension

import "time"

// Config holds the Roster extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.roster" or "roster" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// WebhookSecret is the shared secret for billing webhook signature
	// verification.
	WebhookSecret string `json:"webhook_secret" mapstructure:"webhook_secret" yaml:"webhook_secret"`

	// TrialWindow is how long auto-provisioned trial organizations stay
	// valid (default: 336h, 14 days).
	TrialWindow time.Duration `json:"trial_window" mapstructure:"trial_window" yaml:"trial_window"`

	// TrialSeats is the seat allowance of trial organizations (default: 5).
	TrialSeats int `json:"trial_seats" mapstructure:"trial_seats" yaml:"trial_seats"`

	// CleanupMargin is how long after trial expiry an organization is kept
	// before it becomes eligible for cleanup (default: 336h, 14 days).
	CleanupMargin time.Duration `json:"cleanup_margin" mapstructure:"cleanup_margin" yaml:"cleanup_margin"`

	// SweepInterval is how often the expiry-warning sweeper runs
	// (default: 1h).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// ProviderTimeout bounds every outbound billing and identity provider
	// call (default: 10s).
	ProviderTimeout time.Duration `json:"provider_timeout" mapstructure:"provider_timeout" yaml:"provider_timeout"`

	// MaxEventRetries is the retry budget for applying a billing event
	// before it is dead-lettered (default: 4).
	MaxEventRetries uint `json:"max_event_retries" mapstructure:"max_event_retries" yaml:"max_event_retries"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TrialWindow:     14 * 24 * time.Hour,
		TrialSeats:      5,
		CleanupMargin:   14 * 24 * time.Hour,
		SweepInterval:   time.Hour,
		ProviderTimeout: 10 * time.Second,
		MaxEventRetries: 4,
	}
}
