package roster

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/roster/billing"
	"github.com/xraph/roster/identity"
	"github.com/xraph/roster/license"
	"github.com/xraph/roster/plugin"
	"github.com/xraph/roster/store"
	"github.com/xraph/roster/types"
)

// Roster is the license and membership consistency engine.
type Roster struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	provider billing.Provider
	identity identity.Provider

	webhookSecret []byte

	// Per-seat annual prices by tier.
	prices map[license.Tier]types.Money

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	trialWindow     time.Duration
	trialSeats      int
	cleanupMargin   time.Duration
	sweepInterval   time.Duration
	providerTimeout time.Duration
	maxEventRetries uint
}

// New creates a new Roster instance.
func New(s store.Store, opts ...Option) *Roster {
	r := &Roster{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		stopChan: make(chan struct{}),
		prices: map[license.Tier]types.Money{
			license.TierStandard: types.USD(20000),
			license.TierBusiness: types.USD(35000),
		},
		trialWindow:     14 * 24 * time.Hour,
		trialSeats:      5,
		cleanupMargin:   14 * 24 * time.Hour,
		sweepInterval:   time.Hour,
		providerTimeout: 10 * time.Second,
		maxEventRetries: 4,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Option configures a Roster instance.
type Option func(*Roster)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Roster) {
		r.logger = logger
		r.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(r *Roster) {
		_ = r.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithBillingProvider sets the payment provider.
func WithBillingProvider(p billing.Provider) Option {
	return func(r *Roster) {
		r.provider = p
	}
}

// WithIdentityProvider sets the identity provider used to resolve
// invitation emails.
func WithIdentityProvider(p identity.Provider) Option {
	return func(r *Roster) {
		r.identity = p
	}
}

// WithWebhookSecret sets the shared secret for webhook envelope
// verification.
func WithWebhookSecret(secret []byte) Option {
	return func(r *Roster) {
		r.webhookSecret = secret
	}
}

// WithPrice sets the per-seat annual price for a tier.
func WithPrice(tier license.Tier, price types.Money) Option {
	return func(r *Roster) {
		r.prices[tier] = price
	}
}

// WithTrialConfig configures the trial window and seat allowance for
// auto-provisioned trial organizations.
func WithTrialConfig(window time.Duration, seats int) Option {
	return func(r *Roster) {
		r.trialWindow = window
		r.trialSeats = seats
	}
}

// WithCleanupMargin sets how long after trial expiry an organization is
// kept before it becomes eligible for cleanup.
func WithCleanupMargin(margin time.Duration) Option {
	return func(r *Roster) {
		r.cleanupMargin = margin
	}
}

// WithSweepInterval sets how often the expiry-warning sweeper runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(r *Roster) {
		r.sweepInterval = interval
	}
}

// WithProviderTimeout bounds every outbound provider call.
func WithProviderTimeout(timeout time.Duration) Option {
	return func(r *Roster) {
		r.providerTimeout = timeout
	}
}

// WithMaxEventRetries sets the retry budget for applying a billing
// event before it is dead-lettered.
func WithMaxEventRetries(tries uint) Option {
	return func(r *Roster) {
		r.maxEventRetries = tries
	}
}

// Start begins background workers.
func (r *Roster) Start(ctx context.Context) error {
	// Migrate database
	if err := r.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	r.plugins.EmitInit(ctx, r)

	// Start expiry-warning sweeper
	r.wg.Add(1)
	go r.expirySweeper(ctx)

	r.logger.Info("roster started",
		"trial_window", r.trialWindow,
		"sweep_interval", r.sweepInterval,
		"max_event_retries", r.maxEventRetries,
	)

	return nil
}

// Stop shuts down the Roster.
func (r *Roster) Stop() error {
	close(r.stopChan)
	r.wg.Wait()

	ctx := context.Background()
	r.plugins.EmitShutdown(ctx)

	return r.store.Close()
}

// Store exposes the underlying store, mainly for embedding applications
// that need read access beyond the engine surface.
func (r *Roster) Store() store.Store {
	return r.store
}

// perSeatPrice returns the configured annual price for a tier.
func (r *Roster) perSeatPrice(tier license.Tier) (types.Money, error) {
	price, ok := r.prices[tier]
	if !ok {
		return types.Money{}, ErrUnknownLicenseTier
	}
	return price, nil
}

// providerContext derives a bounded context for an outbound provider
// call.
func (r *Roster) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.providerTimeout)
}
