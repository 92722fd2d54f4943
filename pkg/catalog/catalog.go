// Package catalog aggregates the model specs of every registered provider
// adapter into one queryable registry, and tracks provider health so routing
// only sees models it can actually call.
package catalog

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/finsight-ai/finsight/pkg/models"
)

// Adapter is the slice of the provider contract the catalog needs.
type Adapter interface {
	Name() models.Provider
	SupportedModels() []models.ModelSpec
	HealthCheck(ctx context.Context) error
}

// Catalog is the model registry. Built once at startup from the registered
// adapters; health state is refreshed by the background prober.
type Catalog struct {
	mu       sync.RWMutex
	adapters map[models.Provider]Adapter
	specs    map[string]models.ModelSpec
	order    []string
	health   map[models.Provider]error

	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a catalog from the given adapters. Duplicate model names are
// resolved first-wins; the dropped spec is logged.
func New(adapters ...Adapter) *Catalog {
	c := &Catalog{
		adapters: make(map[models.Provider]Adapter, len(adapters)),
		specs:    make(map[string]models.ModelSpec),
		health:   make(map[models.Provider]error, len(adapters)),
		logger:   slog.With("component", "catalog"),
		stopCh:   make(chan struct{}),
	}

	for _, a := range adapters {
		c.adapters[a.Name()] = a
		// Providers start healthy; the prober downgrades them on failure.
		c.health[a.Name()] = nil
		for _, spec := range a.SupportedModels() {
			if existing, ok := c.specs[spec.Name]; ok {
				c.logger.Warn("Duplicate model name, keeping first registration",
					"model", spec.Name,
					"kept_provider", existing.Provider,
					"dropped_provider", spec.Provider)
				continue
			}
			c.specs[spec.Name] = spec
			c.order = append(c.order, spec.Name)
		}
	}

	c.logger.Info("Model catalog built", "models", len(c.specs), "providers", len(c.adapters))
	return c
}

// Get returns the spec for a model name.
func (c *Catalog) Get(name string) (models.ModelSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.specs[name]
	return spec, ok
}

// All returns every registered model in registration order.
func (c *Catalog) All() []models.ModelSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ModelSpec, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.specs[name])
	}
	return out
}

// AllAvailable returns models whose owning provider passed its last health
// check.
func (c *Catalog) AllAvailable() []models.ModelSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.ModelSpec, 0, len(c.order))
	for _, name := range c.order {
		spec := c.specs[name]
		if c.health[spec.Provider] == nil {
			out = append(out, spec)
		}
	}
	return out
}

// CapabilityScore returns a model's score for one capability, 0 for unknown
// models or capabilities.
func (c *Catalog) CapabilityScore(name, capability string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.specs[name]
	if !ok {
		return 0
	}
	return spec.CapabilityScore(capability)
}

// Healthy reports whether a provider passed its last health check.
func (c *Catalog) Healthy(provider models.Provider) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	err, known := c.health[provider]
	return known && err == nil
}

// HealthReport returns the last health check result per provider, sorted by
// provider name for stable output.
func (c *Catalog) HealthReport() map[models.Provider]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[models.Provider]error, len(c.health))
	for p, err := range c.health {
		out[p] = err
	}
	return out
}

// Providers returns the registered provider names, sorted.
func (c *Catalog) Providers() []models.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Provider, 0, len(c.adapters))
	for p := range c.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RunProbe health-checks every adapter once and records the results.
func (c *Catalog) RunProbe(ctx context.Context) {
	c.mu.RLock()
	adapters := make([]Adapter, 0, len(c.adapters))
	for _, a := range c.adapters {
		adapters = append(adapters, a)
	}
	c.mu.RUnlock()

	for _, a := range adapters {
		err := a.HealthCheck(ctx)

		c.mu.Lock()
		prev := c.health[a.Name()]
		c.health[a.Name()] = err
		c.mu.Unlock()

		if err != nil && prev == nil {
			c.logger.Warn("Provider became unhealthy", "provider", a.Name(), "error", err)
		} else if err == nil && prev != nil {
			c.logger.Info("Provider recovered", "provider", a.Name())
		}
	}
}

// StartProber launches the background health prober. Stop with Close.
func (c *Catalog) StartProber(ctx context.Context, interval time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.RunProbe(ctx)
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the prober goroutine.
func (c *Catalog) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}
