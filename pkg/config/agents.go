package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/finsight-ai/finsight/pkg/models"
)

// AgentsYAML represents the agent section of finsight.yaml. Roles extend or
// override the built-in team; bindings attach routing policy per role or
// per task type.
type AgentsYAML struct {
	Roles        []models.AgentRole             `yaml:"roles,omitempty"`
	Bindings     map[string]models.AgentBinding `yaml:"bindings,omitempty"`
	TaskBindings map[string]models.TaskBinding  `yaml:"task_bindings,omitempty"`
}

// AgentRegistry provides thread-safe access to agent roles and their
// routing bindings.
type AgentRegistry struct {
	mu           sync.RWMutex
	roles        map[string]models.AgentRole
	bindings     map[string]models.AgentBinding
	taskBindings map[string]models.TaskBinding
}

// NewAgentRegistry creates a registry from merged role and binding maps.
func NewAgentRegistry(roles []models.AgentRole, bindings map[string]models.AgentBinding, taskBindings map[string]models.TaskBinding) *AgentRegistry {
	r := &AgentRegistry{
		roles:        make(map[string]models.AgentRole, len(roles)),
		bindings:     make(map[string]models.AgentBinding, len(bindings)),
		taskBindings: make(map[string]models.TaskBinding, len(taskBindings)),
	}
	for _, role := range roles {
		r.roles[role.Key] = role
	}
	for key, b := range bindings {
		r.bindings[key] = b
	}
	for taskType, b := range taskBindings {
		r.taskBindings[taskType] = b
	}
	return r
}

// Role retrieves an agent role by key.
func (r *AgentRegistry) Role(key string) (models.AgentRole, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roles[key]
	if !ok {
		return models.AgentRole{}, fmt.Errorf("agent role %q: %w", key, ErrNotFound)
	}
	return role, nil
}

// Roles returns all roles sorted by priority (most essential first),
// ties broken by key.
func (r *AgentRegistry) Roles() []models.AgentRole {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.AgentRole, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Binding returns the routing binding for a role. The zero binding is
// returned when none is configured.
func (r *AgentRegistry) Binding(roleKey string) models.AgentBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bindings[roleKey]
}

// TaskBinding returns the routing binding for a task type. The zero binding
// is returned when none is configured.
func (r *AgentRegistry) TaskBinding(taskType string) models.TaskBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.taskBindings[taskType]
}

// Len returns the number of registered roles.
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roles)
}

// mergeRoles overlays user roles onto the built-in team by key.
func mergeRoles(builtin []models.AgentRole, user []models.AgentRole) []models.AgentRole {
	merged := make([]models.AgentRole, len(builtin))
	copy(merged, builtin)
	index := make(map[string]int, len(merged))
	for i, role := range merged {
		index[role.Key] = i
	}
	for _, role := range user {
		if i, ok := index[role.Key]; ok {
			merged[i] = role
			continue
		}
		index[role.Key] = len(merged)
		merged = append(merged, role)
	}
	return merged
}
