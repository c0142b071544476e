package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onOrganizationCreated []OnOrganizationCreated
	onTrialConverted      []OnTrialConverted
	onTrialCleaned        []OnTrialCleaned
	onMemberInvited       []OnMemberInvited
	onMemberAccepted      []OnMemberAccepted
	onMemberRemoved       []OnMemberRemoved
	onSeatLimitExceeded   []OnSeatLimitExceeded
	onLicenseRenewed      []OnLicenseRenewed
	onExpiryWarning       []OnExpiryWarning
	onWebhookReceived     []OnWebhookReceived
	onPurchaseConfirmed   []OnPurchaseConfirmed
	onSeatsReconciled     []OnSeatsReconciled
	onEventDeadLettered   []OnEventDeadLettered
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnOrganizationCreated); ok {
		r.onOrganizationCreated = append(r.onOrganizationCreated, v)
	}
	if v, ok := p.(OnTrialConverted); ok {
		r.onTrialConverted = append(r.onTrialConverted, v)
	}
	if v, ok := p.(OnTrialCleaned); ok {
		r.onTrialCleaned = append(r.onTrialCleaned, v)
	}
	if v, ok := p.(OnMemberInvited); ok {
		r.onMemberInvited = append(r.onMemberInvited, v)
	}
	if v, ok := p.(OnMemberAccepted); ok {
		r.onMemberAccepted = append(r.onMemberAccepted, v)
	}
	if v, ok := p.(OnMemberRemoved); ok {
		r.onMemberRemoved = append(r.onMemberRemoved, v)
	}
	if v, ok := p.(OnSeatLimitExceeded); ok {
		r.onSeatLimitExceeded = append(r.onSeatLimitExceeded, v)
	}
	if v, ok := p.(OnLicenseRenewed); ok {
		r.onLicenseRenewed = append(r.onLicenseRenewed, v)
	}
	if v, ok := p.(OnExpiryWarning); ok {
		r.onExpiryWarning = append(r.onExpiryWarning, v)
	}
	if v, ok := p.(OnWebhookReceived); ok {
		r.onWebhookReceived = append(r.onWebhookReceived, v)
	}
	if v, ok := p.(OnPurchaseConfirmed); ok {
		r.onPurchaseConfirmed = append(r.onPurchaseConfirmed, v)
	}
	if v, ok := p.(OnSeatsReconciled); ok {
		r.onSeatsReconciled = append(r.onSeatsReconciled, v)
	}
	if v, ok := p.(OnEventDeadLettered); ok {
		r.onEventDeadLettered = append(r.onEventDeadLettered, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnOrganizationCreated)(nil)).Elem(), "OnOrganizationCreated")
	checkInterface(reflect.TypeOf((*OnTrialConverted)(nil)).Elem(), "OnTrialConverted")
	checkInterface(reflect.TypeOf((*OnMemberInvited)(nil)).Elem(), "OnMemberInvited")
	checkInterface(reflect.TypeOf((*OnMemberAccepted)(nil)).Elem(), "OnMemberAccepted")
	checkInterface(reflect.TypeOf((*OnMemberRemoved)(nil)).Elem(), "OnMemberRemoved")
	checkInterface(reflect.TypeOf((*OnLicenseRenewed)(nil)).Elem(), "OnLicenseRenewed")
	checkInterface(reflect.TypeOf((*OnExpiryWarning)(nil)).Elem(), "OnExpiryWarning")
	checkInterface(reflect.TypeOf((*OnPurchaseConfirmed)(nil)).Elem(), "OnPurchaseConfirmed")
	checkInterface(reflect.TypeOf((*OnSeatsReconciled)(nil)).Elem(), "OnSeatsReconciled")
	checkInterface(reflect.TypeOf((*OnEventDeadLettered)(nil)).Elem(), "OnEventDeadLettered")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, roster interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, roster)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitOrganizationCreated emits an organization created event.
func (r *Registry) EmitOrganizationCreated(ctx context.Context, o interface{}) {
	r.mu.RLock()
	plugins := r.onOrganizationCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOrganizationCreated(ctx, o)
		}); err != nil {
			r.logger.Warn("plugin OnOrganizationCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTrialConverted emits a trial converted event.
func (r *Registry) EmitTrialConverted(ctx context.Context, o interface{}) {
	r.mu.RLock()
	plugins := r.onTrialConverted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTrialConverted(ctx, o)
		}); err != nil {
			r.logger.Warn("plugin OnTrialConverted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTrialCleaned emits a trial cleaned event.
func (r *Registry) EmitTrialCleaned(ctx context.Context, orgID string) {
	r.mu.RLock()
	plugins := r.onTrialCleaned
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTrialCleaned(ctx, orgID)
		}); err != nil {
			r.logger.Warn("plugin OnTrialCleaned failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitMemberInvited emits a member invited event.
func (r *Registry) EmitMemberInvited(ctx context.Context, m interface{}) {
	r.mu.RLock()
	plugins := r.onMemberInvited
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnMemberInvited(ctx, m)
		}); err != nil {
			r.logger.Warn("plugin OnMemberInvited failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitMemberAccepted emits a member accepted event.
func (r *Registry) EmitMemberAccepted(ctx context.Context, m interface{}) {
	r.mu.RLock()
	plugins := r.onMemberAccepted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnMemberAccepted(ctx, m)
		}); err != nil {
			r.logger.Warn("plugin OnMemberAccepted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitMemberRemoved emits a member removed event.
func (r *Registry) EmitMemberRemoved(ctx context.Context, m interface{}) {
	r.mu.RLock()
	plugins := r.onMemberRemoved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnMemberRemoved(ctx, m)
		}); err != nil {
			r.logger.Warn("plugin OnMemberRemoved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSeatLimitExceeded emits a seat limit exceeded event.
func (r *Registry) EmitSeatLimitExceeded(ctx context.Context, orgID string, total, used int) {
	r.mu.RLock()
	plugins := r.onSeatLimitExceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSeatLimitExceeded(ctx, orgID, total, used)
		}); err != nil {
			r.logger.Warn("plugin OnSeatLimitExceeded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLicenseRenewed emits a license renewed event.
func (r *Registry) EmitLicenseRenewed(ctx context.Context, record interface{}) {
	r.mu.RLock()
	plugins := r.onLicenseRenewed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLicenseRenewed(ctx, record)
		}); err != nil {
			r.logger.Warn("plugin OnLicenseRenewed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitExpiryWarning emits an expiry warning event.
func (r *Registry) EmitExpiryWarning(ctx context.Context, l interface{}, info interface{}) {
	r.mu.RLock()
	plugins := r.onExpiryWarning
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnExpiryWarning(ctx, l, info)
		}); err != nil {
			r.logger.Warn("plugin OnExpiryWarning failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitWebhookReceived emits a webhook received event.
func (r *Registry) EmitWebhookReceived(ctx context.Context, provider string, payload []byte) {
	r.mu.RLock()
	plugins := r.onWebhookReceived
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWebhookReceived(ctx, provider, payload)
		}); err != nil {
			r.logger.Warn("plugin OnWebhookReceived failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPurchaseConfirmed emits a purchase confirmed event.
func (r *Registry) EmitPurchaseConfirmed(ctx context.Context, ev interface{}) {
	r.mu.RLock()
	plugins := r.onPurchaseConfirmed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPurchaseConfirmed(ctx, ev)
		}); err != nil {
			r.logger.Warn("plugin OnPurchaseConfirmed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSeatsReconciled emits a seats reconciled event.
func (r *Registry) EmitSeatsReconciled(ctx context.Context, ev interface{}) {
	r.mu.RLock()
	plugins := r.onSeatsReconciled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSeatsReconciled(ctx, ev)
		}); err != nil {
			r.logger.Warn("plugin OnSeatsReconciled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEventDeadLettered emits an event dead-lettered event.
func (r *Registry) EmitEventDeadLettered(ctx context.Context, dl interface{}) {
	r.mu.RLock()
	plugins := r.onEventDeadLettered
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEventDeadLettered(ctx, dl)
		}); err != nil {
			r.logger.Warn("plugin OnEventDeadLettered failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the reconciliation pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
