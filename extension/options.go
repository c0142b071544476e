package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/roster"
	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/identity"
	"github.com/xraph/roster/plugin"
	"github.com/xraph/roster/store"
)

// Option configures the Roster Forge extension.
type Option func(*Extension)

// WithStore sets the store for the roster engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB backs the store with a grove database. The extension
// auto-constructs the postgres, sqlite, or mongo store from the driver
// type.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithRosterOption passes a roster.Option through to the underlying engine.
func WithRosterOption(opt roster.Option) Option {
	return func(e *Extension) {
		e.rosterOpts = append(e.rosterOpts, opt)
	}
}

// WithPlugin registers a roster plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.rosterOpts = append(e.rosterOpts, roster.WithPlugin(p))
	}
}

// WithBillingProvider sets the payment provider.
func WithBillingProvider(p billing.Provider) Option {
	return func(e *Extension) {
		e.rosterOpts = append(e.rosterOpts, roster.WithBillingProvider(p))
	}
}

// WithIdentityProvider sets the identity provider used to resolve
// invitation emails.
func WithIdentityProvider(p identity.Provider) Option {
	return func(e *Extension) {
		e.rosterOpts = append(e.rosterOpts, roster.WithIdentityProvider(p))
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

// WithWebhookSecret sets the billing webhook shared secret.
func WithWebhookSecret(secret string) Option {
	return func(e *Extension) { e.config.WebhookSecret = secret }
}

// WithTrialConfig sets the trial window and seat allowance.
func WithTrialConfig(window time.Duration, seats int) Option {
	return func(e *Extension) {
		e.config.TrialWindow = window
		e.config.TrialSeats = seats
	}
}

// WithSweepInterval sets how often the expiry-warning sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithProviderTimeout bounds every outbound provider call.
func WithProviderTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.ProviderTimeout = d }
}
