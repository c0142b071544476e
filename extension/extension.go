// Package extension provides the Forge extension adapter for Roster.
//
// It implements the forge.Extension interface to integrate Roster
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.roster" or "roster" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/vessel"

	"github.com/xraph/roster"
	"github.com/xraph/roster/store"
	"github.com/xraph/roster/store/memory"
	rostermongo "github.com/xraph/roster/store/mongo"
	"github.com/xraph/roster/store/postgres"
	"github.com/xraph/roster/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "roster"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Seat-license and membership consistency engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Roster as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *roster.Roster
	store      store.Store
	groveDB    *grove.DB
	rosterOpts []roster.Option
}

// New creates a new Roster Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Roster instance.
// This is nil until Register is called.
func (e *Extension) Engine() *roster.Roster { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the roster engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.resolveStore(); err != nil {
		return err
	}

	// Build roster options from resolved config.
	opts := e.buildRosterOpts()

	eng := roster.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*roster.Roster, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("roster: extension not initialized")
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
		return errors.New("roster: store not initialized")
	}
	return e.store.Ping(ctx)
}

// resolveStore picks the store backend: an explicitly provided store
// wins, then a grove database (postgres, sqlite, or mongo by driver),
// then the in-memory store.
func (e *Extension) resolveStore() error {
	if e.store != nil {
		return nil
	}
	if e.groveDB != nil {
		switch {
		case pgdriver.Unwrap(e.groveDB) != nil:
			e.store = postgres.New(e.groveDB)
		case sqlitedriver.Unwrap(e.groveDB) != nil:
			e.store = sqlite.New(e.groveDB)
		case mongodriver.Unwrap(e.groveDB) != nil:
			e.store = rostermongo.New(e.groveDB)
		default:
			return errors.New("roster: unsupported grove driver")
		}
		return nil
	}
	e.store = memory.New()
	return nil
}

// buildRosterOpts constructs roster.Option values from the resolved config.
func (e *Extension) buildRosterOpts() []roster.Option {
	opts := make([]roster.Option, 0, len(e.rosterOpts)+5)

	if e.config.WebhookSecret != "" {
		opts = append(opts, roster.WithWebhookSecret([]byte(e.config.WebhookSecret)))
	}
	if e.config.TrialWindow > 0 && e.config.TrialSeats > 0 {
		opts = append(opts, roster.WithTrialConfig(e.config.TrialWindow, e.config.TrialSeats))
	}
	if e.config.CleanupMargin > 0 {
		opts = append(opts, roster.WithCleanupMargin(e.config.CleanupMargin))
	}
	if e.config.SweepInterval > 0 {
		opts = append(opts, roster.WithSweepInterval(e.config.SweepInterval))
	}
	if e.config.ProviderTimeout > 0 {
		opts = append(opts, roster.WithProviderTimeout(e.config.ProviderTimeout))
	}
	if e.config.MaxEventRetries > 0 {
		opts = append(opts, roster.WithMaxEventRetries(e.config.MaxEventRetries))
	}

	// Append any pass-through roster options.
	opts = append(opts, e.rosterOpts...)

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
			return errors.New("roster: configuration is required but not found in config files; " +
				"ensure 'extensions.roster' or 'roster' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("roster: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("trial_window", e.config.TrialWindow),
		forge.F("trial_seats", e.config.TrialSeats),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("provider_timeout", e.config.ProviderTimeout),
		forge.F("max_event_retries", e.config.MaxEventRetries),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.roster" first (namespaced pattern).
	if cm.IsSet("extensions.roster") {
		if err := cm.Bind("extensions.roster", &cfg); err == nil {
			e.Logger().Debug("roster: loaded config from file",
				forge.F("key", "extensions.roster"),
			)
			return cfg, true
		}
		e.Logger().Warn("roster: failed to bind extensions.roster config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "roster" key.
	if cm.IsSet("roster") {
		if err := cm.Bind("roster", &cfg); err == nil {
			e.Logger().Debug("roster: loaded config from file",
				forge.F("key", "roster"),
			)
			return cfg, true
		}
		e.Logger().Warn("roster: failed to bind roster config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.TrialWindow == 0 {
		cfg.TrialWindow = defaults.TrialWindow
	}
	if cfg.TrialSeats == 0 {
		cfg.TrialSeats = defaults.TrialSeats
	}
	if cfg.CleanupMargin == 0 {
		cfg.CleanupMargin = defaults.CleanupMargin
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.ProviderTimeout == 0 {
		cfg.ProviderTimeout = defaults.ProviderTimeout
	}
	if cfg.MaxEventRetries == 0 {
		cfg.MaxEventRetries = defaults.MaxEventRetries
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

	// String fields: YAML takes precedence.
	if yamlConfig.WebhookSecret == "" && programmaticConfig.WebhookSecret != "" {
		yamlConfig.WebhookSecret = programmaticConfig.WebhookSecret
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.TrialWindow == 0 && programmaticConfig.TrialWindow != 0 {
		yamlConfig.TrialWindow = programmaticConfig.TrialWindow
	}
	if yamlConfig.TrialSeats == 0 && programmaticConfig.TrialSeats != 0 {
		yamlConfig.TrialSeats = programmaticConfig.TrialSeats
	}
	if yamlConfig.CleanupMargin == 0 && programmaticConfig.CleanupMargin != 0 {
		yamlConfig.CleanupMargin = programmaticConfig.CleanupMargin
	}
	if yamlConfig.SweepInterval == 0 && programmaticConfig.SweepInterval != 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.ProviderTimeout == 0 && programmaticConfig.ProviderTimeout != 0 {
		yamlConfig.ProviderTimeout = programmaticConfig.ProviderTimeout
	}
	if yamlConfig.MaxEventRetries == 0 && programmaticConfig.MaxEventRetries != 0 {
		yamlConfig.MaxEventRetries = programmaticConfig.MaxEventRetries
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
