package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/pkg/models"
)

func validTestConfig() *Config {
	return &Config{
		Settings:   DefaultSettings(),
		Routing:    DefaultRoutingConfig(),
		Agents:     NewAgentRegistry(models.DefaultAgentRoles(), nil, nil),
		ModelSeeds: DefaultModelSeeds(),
	}
}

func TestValidator(t *testing.T) {
	t.Run("built-in configuration is valid", func(t *testing.T) {
		require.NoError(t, NewValidator(validTestConfig()).ValidateAll())
	})

	t.Run("routing weights must sum to one", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Settings.RoutingWeights = RoutingWeights{Quality: 0.5, Performance: 0.3, Cost: 0.1}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sum to 1.0")
	})

	t.Run("diversity knobs must be in range", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Settings.DiversityThreshold = 1.5

		require.Error(t, NewValidator(cfg).ValidateAll())
	})

	t.Run("empty catalog rejected", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.ModelSeeds = nil

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "catalog is empty")
	})

	t.Run("capability scores must be in range", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.ModelSeeds = append(cfg.ModelSeeds, models.ModelSpec{
			Name:     "broken-model",
			Provider: models.ProviderGateway,
			Capabilities: map[string]float64{
				models.CapReasoning: 1.2,
			},
		})

		require.Error(t, NewValidator(cfg).ValidateAll())
	})

	t.Run("pool flagship must exist in catalog", func(t *testing.T) {
		cfg := validTestConfig()
		pool := cfg.Routing.Pools[PoolDeepReasoning]
		pool.Flagship = "retired-model"
		cfg.Routing.Pools[PoolDeepReasoning] = pool

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retired-model")
	})

	t.Run("affinity rows must sum to one", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Routing.TaskPoolAffinity["news_analysis"] = map[string]float64{
			PoolDeepReasoning:    0.5,
			PoolTechnicalLongSeq: 0.3,
		}

		err := NewValidator(cfg).ValidateAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "news_analysis")
	})

	t.Run("affinity referencing unknown pool rejected", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Routing.TaskPoolAffinity["news_analysis"] = map[string]float64{
			"mystery_pool": 1.0,
		}

		require.Error(t, NewValidator(cfg).ValidateAll())
	})

	t.Run("fallback order entries must exist", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Routing.DefaultFallbackOrder = []string{"no-such-model"}

		require.Error(t, NewValidator(cfg).ValidateAll())
	})

	t.Run("role without task type rejected", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Agents = NewAgentRegistry([]models.AgentRole{
			{Key: "mystery_agent", DisplayName: "Mystery"},
		}, nil, nil)

		require.Error(t, NewValidator(cfg).ValidateAll())
	})
}
