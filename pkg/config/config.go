package config

import "github.com/finsight-ai/finsight/pkg/models"

// Config is the umbrella configuration object returned by Initialize():
// environment settings, the routing table, the agent registry, and the
// model catalog seeds.
type Config struct {
	configDir string

	// Settings are the process-level environment settings.
	Settings *Settings

	// Routing is the data-driven routing table (pools, affinities, aliases).
	Routing *RoutingConfig

	// Agents holds roles and routing bindings.
	Agents *AgentRegistry

	// ModelSeeds is the merged model catalog (built-in + models.yaml).
	ModelSeeds []models.ModelSpec
}

// Stats contains statistics about loaded configuration.
type Stats struct {
	Roles  int
	Models int
	Pools  int
}

// Stats returns configuration statistics for logging.
func (c *Config) Stats() Stats {
	s := Stats{Models: len(c.ModelSeeds)}
	if c.Agents != nil {
		s.Roles = c.Agents.Len()
	}
	if c.Routing != nil {
		s.Pools = len(c.Routing.Pools)
	}
	return s
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ModelsForProvider returns the catalog seeds owned by one provider.
func (c *Config) ModelsForProvider(p models.Provider) []models.ModelSpec {
	var out []models.ModelSpec
	for _, m := range c.ModelSeeds {
		if m.Provider == p {
			out = append(out, m)
		}
	}
	return out
}
