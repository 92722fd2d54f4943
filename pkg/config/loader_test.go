package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/pkg/models"
)

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInitialize(t *testing.T) {
	t.Run("empty config dir yields built-in defaults", func(t *testing.T) {
		cfg, err := Initialize(context.Background(), t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, 9, cfg.Agents.Len())
		assert.Len(t, cfg.Routing.Pools, 2)
		assert.NotEmpty(t, cfg.ModelSeeds)
		assert.Equal(t, "deepseek-r1", cfg.Routing.Pools[PoolDeepReasoning].Flagship)
	})

	t.Run("finsight.yaml overrides roles and bindings", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "finsight.yaml", `
agents:
  roles:
    - key: macro_economist
      display_name: Macro Economist
      task_type: policy_analysis
      priority: 6
  bindings:
    technical_analyst:
      locked_model: gemini-2.5-pro
  task_bindings:
    news_analysis:
      deny_models: [qwen-max]
`)

		cfg, err := Initialize(context.Background(), dir)
		require.NoError(t, err)

		assert.Equal(t, 10, cfg.Agents.Len())
		role, err := cfg.Agents.Role("macro_economist")
		require.NoError(t, err)
		assert.Equal(t, "policy_analysis", role.TaskType)

		binding := cfg.Agents.Binding("technical_analyst")
		assert.Equal(t, "gemini-2.5-pro", binding.LockedModel)

		taskBinding := cfg.Agents.TaskBinding("news_analysis")
		assert.Equal(t, []string{"qwen-max"}, taskBinding.DenyModels)
	})

	t.Run("models.yaml extends and overrides the catalog", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "models.yaml", `
models:
  - name: glm-4-plus
    provider: gateway
    kind: chinese
    cost_per_1k_tokens: 0.0008
    max_output_tokens: 8192
    context_window: 131072
    supports_streaming: true
    capabilities:
      chinese: 0.95
      reasoning: 0.78
  - name: deepseek-v3
    provider: gateway
    kind: general
    cost_per_1k_tokens: 0.0004
    max_output_tokens: 8192
    context_window: 65536
    supports_streaming: true
    capabilities:
      chinese: 0.92
`)

		cfg, err := Initialize(context.Background(), dir)
		require.NoError(t, err)

		byName := make(map[string]models.ModelSpec)
		for _, m := range cfg.ModelSeeds {
			byName[m.Name] = m
		}
		require.Contains(t, byName, "glm-4-plus")
		assert.Equal(t, models.ProviderGateway, byName["glm-4-plus"].Provider)
		assert.Equal(t, 0.0004, byName["deepseek-v3"].CostPer1KTokens)
	})

	t.Run("routing overrides merge over defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "finsight.yaml", `
routing:
  default_fallback_order: [gpt-4o-mini, deepseek-v3]
`)

		cfg, err := Initialize(context.Background(), dir)
		require.NoError(t, err)

		assert.Equal(t, []string{"gpt-4o-mini", "deepseek-v3"}, cfg.Routing.DefaultFallbackOrder)
		// Untouched defaults survive the merge.
		assert.Len(t, cfg.Routing.Pools, 2)
		assert.NotEmpty(t, cfg.Routing.TaskPoolAffinity)
	})

	t.Run("environment expansion in YAML", func(t *testing.T) {
		t.Setenv("LOCKED_MODEL", "claude-sonnet-4")
		dir := t.TempDir()
		writeConfigFile(t, dir, "finsight.yaml", `
agents:
  bindings:
    risk_manager:
      locked_model: "{{.LOCKED_MODEL}}"
`)

		cfg, err := Initialize(context.Background(), dir)
		require.NoError(t, err)

		assert.Equal(t, "claude-sonnet-4", cfg.Agents.Binding("risk_manager").LockedModel)
	})

	t.Run("invalid YAML fails with load error", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "finsight.yaml", "agents: [not: a: map")

		_, err := Initialize(context.Background(), dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidYAML)
	})

	t.Run("unknown flagship fails validation", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "finsight.yaml", `
routing:
  pools:
    deep_reasoning:
      flagship: nonexistent-model
`)

		_, err := Initialize(context.Background(), dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
	})
}
