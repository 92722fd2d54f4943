package config

import (
	"fmt"
	"log/slog"
	"math"
)

const weightTolerance = 0.01

// Validator validates loaded configuration with clear error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast, stops at first
// error). Order: settings → catalog → roles → routing, so dependencies are
// validated before dependents.
func (v *Validator) ValidateAll() error {
	if err := v.validateSettings(); err != nil {
		return fmt.Errorf("settings validation failed: %w", err)
	}
	if err := v.validateCatalog(); err != nil {
		return fmt.Errorf("catalog validation failed: %w", err)
	}
	if err := v.validateRoles(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}
	if err := v.validateRouting(); err != nil {
		return fmt.Errorf("routing validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateSettings() error {
	s := v.cfg.Settings
	if s == nil {
		return fmt.Errorf("settings are required")
	}
	if s.MaxCostPerSession < 0 {
		return fmt.Errorf("MAX_COST_PER_SESSION must be non-negative, got %v", s.MaxCostPerSession)
	}
	if math.Abs(s.RoutingWeights.Sum()-1.0) > weightTolerance {
		return fmt.Errorf("routing weights must sum to 1.0, got %v", s.RoutingWeights.Sum())
	}
	if s.DiversityThreshold < 0 || s.DiversityThreshold > 1 {
		return fmt.Errorf("DIVERSITY_THRESHOLD must be in [0,1], got %v", s.DiversityThreshold)
	}
	if s.DiversityWeight < 0 || s.DiversityWeight > 1 {
		return fmt.Errorf("DIVERSITY_WEIGHT must be in [0,1], got %v", s.DiversityWeight)
	}
	return nil
}

func (v *Validator) validateCatalog() error {
	if len(v.cfg.ModelSeeds) == 0 {
		return fmt.Errorf("model catalog is empty")
	}
	for _, m := range v.cfg.ModelSeeds {
		if m.Name == "" {
			return fmt.Errorf("model with empty name")
		}
		if m.Provider == "" {
			return fmt.Errorf("model %q has no provider", m.Name)
		}
		if m.CostPer1KTokens < 0 {
			return fmt.Errorf("model %q has negative cost", m.Name)
		}
		for cap, score := range m.Capabilities {
			if score < 0 || score > 1 {
				return fmt.Errorf("model %q capability %q score %v out of [0,1]", m.Name, cap, score)
			}
		}
	}
	return nil
}

func (v *Validator) validateRoles() error {
	for _, role := range v.cfg.Agents.Roles() {
		if role.Key == "" {
			return fmt.Errorf("agent role with empty key")
		}
		if role.TaskType == "" {
			return fmt.Errorf("agent role %q has no task_type", role.Key)
		}
	}
	return nil
}

func (v *Validator) validateRouting() error {
	r := v.cfg.Routing
	known := v.knownModels()

	for name, pool := range r.Pools {
		if pool.Flagship == "" {
			return fmt.Errorf("pool %q has no flagship model", name)
		}
		if !known[pool.Flagship] {
			return fmt.Errorf("pool %q flagship %q not in model catalog", name, pool.Flagship)
		}
		for _, alt := range pool.Alternatives {
			if !known[alt] {
				return fmt.Errorf("pool %q alternative %q not in model catalog", name, alt)
			}
		}
	}

	for taskType, row := range r.TaskPoolAffinity {
		sum := 0.0
		for pool, affinity := range row {
			if _, ok := r.Pools[pool]; !ok {
				return fmt.Errorf("task type %q references unknown pool %q", taskType, pool)
			}
			if affinity < 0 || affinity > 1 {
				return fmt.Errorf("task type %q affinity for pool %q out of [0,1]: %v", taskType, pool, affinity)
			}
			sum += affinity
		}
		if math.Abs(sum-1.0) > weightTolerance {
			return fmt.Errorf("task type %q pool affinities must sum to 1.0, got %v", taskType, sum)
		}
	}

	if len(r.DefaultFallbackOrder) == 0 {
		return fmt.Errorf("default fallback order is empty")
	}
	for _, name := range r.DefaultFallbackOrder {
		if !known[name] {
			return fmt.Errorf("default fallback model %q not in model catalog", name)
		}
	}

	for alias, target := range r.Aliases {
		if !known[target] {
			// Aliases to retired models are tolerated so configs can lead
			// catalog updates, but they deserve a warning.
			slog.Warn("Alias targets a model not present in the catalog", "alias", alias, "target", target)
		}
	}

	return nil
}

func (v *Validator) knownModels() map[string]bool {
	known := make(map[string]bool, len(v.cfg.ModelSeeds))
	for _, m := range v.cfg.ModelSeeds {
		known[m.Name] = true
	}
	return known
}
