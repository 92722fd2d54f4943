package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds process-level configuration read from the environment.
// Values are read once at startup; unset or malformed keys fall back to
// defaults with a logged warning.
type Settings struct {
	// MultiModelEnabled is the master switch for smart routing. When off,
	// every task runs on the first entry of the default fallback order.
	MultiModelEnabled bool

	// MaxCostPerSession is the default per-session budget cap in USD.
	MaxCostPerSession float64

	// MaxConcurrentTasks is the worker pool size: the cap on in-flight
	// adapter calls across all runs.
	MaxConcurrentTasks int

	// QueueMaxDepth bounds the FIFO submission queue. A full queue makes
	// StartAnalysis fail fast with system_overload.
	QueueMaxDepth int

	// EnableCaching toggles the (out-of-core) result cache.
	EnableCaching bool

	// DataDir is the root of the local fallback store.
	DataDir string

	// Store TTLs.
	ProgressTTL time.Duration
	SessionTTL  time.Duration
	AnalysisTTL time.Duration

	// Diversity routing knobs.
	DiversityEnabled   bool
	DiversityThreshold float64
	DiversityWeight    float64

	// RoutingWeights is the "quality,performance,cost" triple for
	// traditional scoring.
	RoutingWeights RoutingWeights

	// Primary store connection. Empty RedisAddr disables the primary store
	// and the service runs on the file fallback alone.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// HTTPPort is the API listen port.
	HTTPPort int

	// HealthProbeInterval is how often adapter health checks run.
	HealthProbeInterval time.Duration
}

// DefaultSettings returns the built-in settings used when the environment
// does not override them.
func DefaultSettings() *Settings {
	return &Settings{
		MultiModelEnabled:   true,
		MaxCostPerSession:   1.0,
		MaxConcurrentTasks:  5,
		QueueMaxDepth:       64,
		EnableCaching:       false,
		DataDir:             "./data",
		ProgressTTL:         1 * time.Hour,
		SessionTTL:          24 * time.Hour,
		AnalysisTTL:         7 * 24 * time.Hour,
		DiversityEnabled:    true,
		DiversityThreshold:  0.4,
		DiversityWeight:     0.3,
		RoutingWeights:      RoutingWeights{Quality: 0.6, Performance: 0.3, Cost: 0.1},
		RedisAddr:           "",
		RedisDB:             0,
		HTTPPort:            8080,
		HealthProbeInterval: 60 * time.Second,
	}
}

// SettingsFromEnv reads all recognized environment keys over the defaults.
func SettingsFromEnv() *Settings {
	s := DefaultSettings()

	s.MultiModelEnabled = envBool("MULTI_MODEL_ENABLED", s.MultiModelEnabled)
	s.MaxCostPerSession = envFloat("MAX_COST_PER_SESSION", s.MaxCostPerSession)
	s.MaxConcurrentTasks = envInt("MAX_CONCURRENT_TASKS", s.MaxConcurrentTasks)
	s.QueueMaxDepth = envInt("QUEUE_MAX_DEPTH", s.QueueMaxDepth)
	s.EnableCaching = envBool("ENABLE_CACHING", s.EnableCaching)
	if v := os.Getenv("DATA_DIR"); v != "" {
		s.DataDir = v
	}
	s.ProgressTTL = envSeconds("PROGRESS_TTL_SEC", s.ProgressTTL)
	s.SessionTTL = envSeconds("SESSION_TTL_SEC", s.SessionTTL)
	s.AnalysisTTL = envSeconds("ANALYSIS_TTL_SEC", s.AnalysisTTL)
	s.DiversityEnabled = envBool("DIVERSITY_ENABLED", s.DiversityEnabled)
	s.DiversityThreshold = envFloat("DIVERSITY_THRESHOLD", s.DiversityThreshold)
	s.DiversityWeight = envFloat("DIVERSITY_WEIGHT", s.DiversityWeight)
	if v := os.Getenv("ROUTING_WEIGHTS"); v != "" {
		if w, err := ParseRoutingWeights(v); err == nil {
			s.RoutingWeights = w
		} else {
			slog.Warn("Invalid ROUTING_WEIGHTS, using defaults", "value", v, "error", err)
		}
	}
	s.RedisAddr = os.Getenv("REDIS_ADDR")
	s.RedisPassword = os.Getenv("REDIS_PASSWORD")
	s.RedisDB = envInt("REDIS_DB", s.RedisDB)
	s.HTTPPort = envInt("HTTP_PORT", s.HTTPPort)
	s.HealthProbeInterval = envSeconds("HEALTH_PROBE_INTERVAL_SEC", s.HealthProbeInterval)

	if s.MaxConcurrentTasks < 1 {
		slog.Warn("MAX_CONCURRENT_TASKS below 1, clamping", "value", s.MaxConcurrentTasks)
		s.MaxConcurrentTasks = 1
	}

	return s
}

// ParseRoutingWeights parses a "quality,performance,cost" triple.
func ParseRoutingWeights(v string) (RoutingWeights, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 3 {
		return RoutingWeights{}, NewLoadError("ROUTING_WEIGHTS", ErrInvalidYAML)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return RoutingWeights{}, err
		}
		vals[i] = f
	}
	return RoutingWeights{Quality: vals[0], Performance: vals[1], Cost: vals[2]}, nil
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Invalid boolean environment value, using default", "key", key, "value", v)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Invalid integer environment value, using default", "key", key, "value", v)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Invalid float environment value, using default", "key", key, "value", v)
		return def
	}
	return f
}

func envSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("Invalid seconds environment value, using default", "key", key, "value", v)
		return def
	}
	return time.Duration(n) * time.Second
}
