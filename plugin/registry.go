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
	onInit                   []OnInit
	onShutdown               []OnShutdown
	onDefinitionCreated      []OnDefinitionCreated
	onDefinitionDeactivated  []OnDefinitionDeactivated
	onPackagePurchased       []OnPackagePurchased
	onUnitsDeducted          []OnUnitsDeducted
	onPackageDepleted        []OnPackageDepleted
	onPackageExpired         []OnPackageExpired
	onPackageCancelled       []OnPackageCancelled
	onCoverageMissed         []OnCoverageMissed
	onRefundCreated          []OnRefundCreated
	onReconciliationRecorded []OnReconciliationRecorded
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
	if v, ok := p.(OnDefinitionCreated); ok {
		r.onDefinitionCreated = append(r.onDefinitionCreated, v)
	}
	if v, ok := p.(OnDefinitionDeactivated); ok {
		r.onDefinitionDeactivated = append(r.onDefinitionDeactivated, v)
	}
	if v, ok := p.(OnPackagePurchased); ok {
		r.onPackagePurchased = append(r.onPackagePurchased, v)
	}
	if v, ok := p.(OnUnitsDeducted); ok {
		r.onUnitsDeducted = append(r.onUnitsDeducted, v)
	}
	if v, ok := p.(OnPackageDepleted); ok {
		r.onPackageDepleted = append(r.onPackageDepleted, v)
	}
	if v, ok := p.(OnPackageExpired); ok {
		r.onPackageExpired = append(r.onPackageExpired, v)
	}
	if v, ok := p.(OnPackageCancelled); ok {
		r.onPackageCancelled = append(r.onPackageCancelled, v)
	}
	if v, ok := p.(OnCoverageMissed); ok {
		r.onCoverageMissed = append(r.onCoverageMissed, v)
	}
	if v, ok := p.(OnRefundCreated); ok {
		r.onRefundCreated = append(r.onRefundCreated, v)
	}
	if v, ok := p.(OnReconciliationRecorded); ok {
		r.onReconciliationRecorded = append(r.onReconciliationRecorded, v)
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

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnDefinitionCreated)(nil)).Elem(), "OnDefinitionCreated")
	checkInterface(reflect.TypeOf((*OnDefinitionDeactivated)(nil)).Elem(), "OnDefinitionDeactivated")
	checkInterface(reflect.TypeOf((*OnPackagePurchased)(nil)).Elem(), "OnPackagePurchased")
	checkInterface(reflect.TypeOf((*OnUnitsDeducted)(nil)).Elem(), "OnUnitsDeducted")
	checkInterface(reflect.TypeOf((*OnPackageDepleted)(nil)).Elem(), "OnPackageDepleted")
	checkInterface(reflect.TypeOf((*OnPackageExpired)(nil)).Elem(), "OnPackageExpired")
	checkInterface(reflect.TypeOf((*OnPackageCancelled)(nil)).Elem(), "OnPackageCancelled")
	checkInterface(reflect.TypeOf((*OnCoverageMissed)(nil)).Elem(), "OnCoverageMissed")
	checkInterface(reflect.TypeOf((*OnRefundCreated)(nil)).Elem(), "OnRefundCreated")
	checkInterface(reflect.TypeOf((*OnReconciliationRecorded)(nil)).Elem(), "OnReconciliationRecorded")

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
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
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
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitDefinitionCreated emits a definition created event.
func (r *Registry) EmitDefinitionCreated(ctx context.Context, def interface{}) {
	r.mu.RLock()
	plugins := r.onDefinitionCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDefinitionCreated(ctx, def)
		}); err != nil {
			r.logger.Warn("plugin OnDefinitionCreated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitDefinitionDeactivated emits a definition deactivated event.
func (r *Registry) EmitDefinitionDeactivated(ctx context.Context, defID string) {
	r.mu.RLock()
	plugins := r.onDefinitionDeactivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDefinitionDeactivated(ctx, defID)
		}); err != nil {
			r.logger.Warn("plugin OnDefinitionDeactivated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPackagePurchased emits a package purchased event.
func (r *Registry) EmitPackagePurchased(ctx context.Context, pkg interface{}) {
	r.mu.RLock()
	plugins := r.onPackagePurchased
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPackagePurchased(ctx, pkg)
		}); err != nil {
			r.logger.Warn("plugin OnPackagePurchased failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitUnitsDeducted emits a units deducted event.
func (r *Registry) EmitUnitsDeducted(ctx context.Context, pkg, deduction interface{}) {
	r.mu.RLock()
	plugins := r.onUnitsDeducted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUnitsDeducted(ctx, pkg, deduction)
		}); err != nil {
			r.logger.Warn("plugin OnUnitsDeducted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPackageDepleted emits a package depleted event.
func (r *Registry) EmitPackageDepleted(ctx context.Context, pkg interface{}) {
	r.mu.RLock()
	plugins := r.onPackageDepleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPackageDepleted(ctx, pkg)
		}); err != nil {
			r.logger.Warn("plugin OnPackageDepleted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPackageExpired emits a package expired event.
func (r *Registry) EmitPackageExpired(ctx context.Context, pkg interface{}) {
	r.mu.RLock()
	plugins := r.onPackageExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPackageExpired(ctx, pkg)
		}); err != nil {
			r.logger.Warn("plugin OnPackageExpired failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPackageCancelled emits a package cancelled event.
func (r *Registry) EmitPackageCancelled(ctx context.Context, pkg, result interface{}) {
	r.mu.RLock()
	plugins := r.onPackageCancelled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPackageCancelled(ctx, pkg, result)
		}); err != nil {
			r.logger.Warn("plugin OnPackageCancelled failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCoverageMissed emits a coverage missed event.
func (r *Registry) EmitCoverageMissed(ctx context.Context, orgID, memberID, itemKind string) {
	r.mu.RLock()
	plugins := r.onCoverageMissed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCoverageMissed(ctx, orgID, memberID, itemKind)
		}); err != nil {
			r.logger.Warn("plugin OnCoverageMissed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitRefundCreated emits a refund created event.
func (r *Registry) EmitRefundCreated(ctx context.Context, intent, entry interface{}) {
	r.mu.RLock()
	plugins := r.onRefundCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRefundCreated(ctx, intent, entry)
		}); err != nil {
			r.logger.Warn("plugin OnRefundCreated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitReconciliationRecorded emits a reconciliation recorded event.
func (r *Registry) EmitReconciliationRecorded(ctx context.Context, rec interface{}) {
	r.mu.RLock()
	plugins := r.onReconciliationRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReconciliationRecorded(ctx, rec)
		}); err != nil {
			r.logger.Warn("plugin OnReconciliationRecorded failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger pipeline.
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
