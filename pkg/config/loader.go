package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/finsight-ai/finsight/pkg/models"
)

// FinsightYAMLConfig represents the complete finsight.yaml file structure.
type FinsightYAMLConfig struct {
	Agents  *AgentsYAML    `yaml:"agents"`
	Routing *RoutingConfig `yaml:"routing"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read environment settings
//  2. Load finsight.yaml and models.yaml from configDir (both optional)
//  3. Expand environment variables
//  4. Merge built-in + user-defined configuration
//  5. Build the agent registry
//  6. Validate everything
//  7. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"roles", stats.Roles,
		"models", stats.Models,
		"pools", stats.Pools)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	// 1. Environment settings
	settings := SettingsFromEnv()

	// 2. Load finsight.yaml (agents + routing overrides)
	fileCfg, err := loader.loadFinsightYAML()
	if err != nil {
		return nil, NewLoadError("finsight.yaml", err)
	}

	// 3. Load models.yaml (catalog extensions)
	userModels, err := loader.loadModelsYAML()
	if err != nil {
		return nil, NewLoadError("models.yaml", err)
	}

	// 4. Merge built-in + user-defined configuration
	routing := DefaultRoutingConfig()
	if fileCfg.Routing != nil {
		// Non-zero user values override the built-in table.
		if err := mergo.Merge(routing, fileCfg.Routing, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge routing config: %w", err)
		}
	}

	roles := models.DefaultAgentRoles()
	bindings := map[string]models.AgentBinding{}
	taskBindings := map[string]models.TaskBinding{}
	if fileCfg.Agents != nil {
		roles = mergeRoles(roles, fileCfg.Agents.Roles)
		if fileCfg.Agents.Bindings != nil {
			bindings = fileCfg.Agents.Bindings
		}
		if fileCfg.Agents.TaskBindings != nil {
			taskBindings = fileCfg.Agents.TaskBindings
		}
	}
	seeds := mergeModelSeeds(DefaultModelSeeds(), userModels)

	// 5. Build the agent registry
	agents := NewAgentRegistry(roles, bindings, taskBindings)

	return &Config{
		configDir:  configDir,
		Settings:   settings,
		Routing:    routing,
		Agents:     agents,
		ModelSeeds: seeds,
	}, nil
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

type configLoader struct {
	configDir string
}

// loadYAML reads one optional YAML file. A missing file leaves the target
// untouched so built-in defaults apply.
func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("Configuration file not present, using built-in defaults", "file", filename)
			return nil
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// ExpandEnv passes through original data on parse errors, letting the
	// YAML parser produce the clearer error message.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadFinsightYAML() (*FinsightYAMLConfig, error) {
	var config FinsightYAMLConfig
	if err := l.loadYAML("finsight.yaml", &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (l *configLoader) loadModelsYAML() ([]models.ModelSpec, error) {
	var config ModelsYAML
	if err := l.loadYAML("models.yaml", &config); err != nil {
		return nil, err
	}
	return config.Models, nil
}
