// Package config loads the service settings from environment variables and
// an optional config.yaml, the environment winning. File keys are the
// environment names lowercased.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/Mikeyy1405/Writgoai.nl/internal/llm/router"
	"github.com/Mikeyy1405/Writgoai.nl/internal/observability"
	"github.com/Mikeyy1405/Writgoai.nl/internal/sandbox"
	"github.com/Mikeyy1405/Writgoai.nl/internal/version"
)

// Config carries every tunable of the service. Load fills it from the
// environment with defaults for everything except the gateway key.
type Config struct {
	// AIML gateway
	AIMLAPIKey  string
	AIMLBaseURL string

	// Platform callback; both empty disables webhook delivery.
	WritgoAPIURL        string
	WritgoWebhookSecret string

	// Agent loop
	MaxIterations int

	// Sandbox
	SandboxImage   string
	SandboxTimeout time.Duration
	SandboxMemory  string
	SandboxCPUs    float64

	// Task service
	WorkspaceRoot      string
	MaxConcurrentTasks int64
	TaskEvictionGrace  time.Duration

	// HTTP server
	Host string
	Port int

	LogLevel string

	// Model routing. ModelsFile points at an optional models.yaml;
	// ModelOverrides carries the per-tier environment overrides.
	ModelsFile     string
	ModelOverrides map[router.Tier]string

	// Observability
	MetricsEnabled    bool
	TracingEnabled    bool
	TracingExporter   string
	TracingOTLP       string
	TracingZipkin     string
	TracingSampleRate float64
}

// Load reads the configuration. The only hard requirement is AIML_API_KEY;
// everything else carries a default. A config.yaml in the working directory
// or /etc/vps-agent supplies values the environment does not.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/vps-agent")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		AIMLAPIKey:  v.GetString("AIML_API_KEY"),
		AIMLBaseURL: v.GetString("AIML_BASE_URL"),

		WritgoAPIURL:        v.GetString("WRITGO_API_URL"),
		WritgoWebhookSecret: v.GetString("WRITGO_WEBHOOK_SECRET"),

		MaxIterations: v.GetInt("MAX_ITERATIONS"),

		SandboxImage:   v.GetString("SANDBOX_IMAGE"),
		SandboxTimeout: time.Duration(v.GetInt("SANDBOX_TIMEOUT")) * time.Second,
		SandboxMemory:  v.GetString("SANDBOX_MEMORY"),
		SandboxCPUs:    v.GetFloat64("SANDBOX_CPUS"),

		WorkspaceRoot:      v.GetString("WORKSPACE_ROOT"),
		MaxConcurrentTasks: v.GetInt64("MAX_CONCURRENT_TASKS"),
		TaskEvictionGrace:  time.Duration(v.GetInt("TASK_EVICTION_GRACE")) * time.Second,

		Host: v.GetString("HOST"),
		Port: v.GetInt("PORT"),

		LogLevel: v.GetString("LOG_LEVEL"),

		ModelsFile: v.GetString("MODELS_FILE"),
		ModelOverrides: map[router.Tier]string{
			router.TierDefault:  v.GetString("DEFAULT_MODEL"),
			router.TierComplex:  v.GetString("MODEL_COMPLEX"),
			router.TierBalanced: v.GetString("MODEL_BALANCED"),
			router.TierFast:     v.GetString("MODEL_FAST"),
			router.TierCoding:   v.GetString("MODEL_CODING"),
			router.TierLlama:    v.GetString("MODEL_LLAMA"),
		},

		MetricsEnabled:    v.GetBool("METRICS_ENABLED"),
		TracingEnabled:    v.GetBool("TRACING_ENABLED"),
		TracingExporter:   v.GetString("TRACING_EXPORTER"),
		TracingOTLP:       v.GetString("TRACING_OTLP_ENDPOINT"),
		TracingZipkin:     v.GetString("TRACING_ZIPKIN_ENDPOINT"),
		TracingSampleRate: v.GetFloat64("TRACING_SAMPLE_RATE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("AIML_BASE_URL", "https://api.aimlapi.com/v1")
	v.SetDefault("MAX_ITERATIONS", 50)
	v.SetDefault("SANDBOX_IMAGE", sandbox.DefaultImage)
	v.SetDefault("SANDBOX_TIMEOUT", 300) // seconds
	v.SetDefault("SANDBOX_MEMORY", "2g")
	v.SetDefault("SANDBOX_CPUS", 2.0)
	v.SetDefault("WORKSPACE_ROOT", "/tmp")
	v.SetDefault("MAX_CONCURRENT_TASKS", 4)
	v.SetDefault("TASK_EVICTION_GRACE", 3600) // seconds
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "otlp")
	v.SetDefault("TRACING_SAMPLE_RATE", 1.0)
}

func (c *Config) validate() error {
	if c.AIMLAPIKey == "" {
		return fmt.Errorf("AIML_API_KEY is required")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("MAX_ITERATIONS must be positive, got %d", c.MaxIterations)
	}
	if c.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_TASKS must be positive, got %d", c.MaxConcurrentTasks)
	}
	if c.SandboxTimeout <= 0 {
		return fmt.Errorf("SANDBOX_TIMEOUT must be positive")
	}
	if c.TaskEvictionGrace < 0 {
		return fmt.Errorf("TASK_EVICTION_GRACE must not be negative")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.TracingEnabled && c.TracingExporter != "otlp" && c.TracingExporter != "zipkin" {
		return fmt.Errorf("TRACING_EXPORTER must be otlp or zipkin, got %q", c.TracingExporter)
	}
	return nil
}

// ModelTable merges the models file, when configured, with the per-tier
// environment overrides. Environment entries win.
func (c *Config) ModelTable() (map[router.Tier]string, error) {
	table := make(map[router.Tier]string)
	if c.ModelsFile != "" {
		fileTable, err := router.LoadTableFile(c.ModelsFile)
		if err != nil {
			return nil, err
		}
		for tier, model := range fileTable {
			table[tier] = model
		}
	}
	for tier, model := range c.ModelOverrides {
		if model != "" {
			table[tier] = model
		}
	}
	return table, nil
}

// Sandbox assembles the container settings for the sandbox package.
func (c *Config) Sandbox() sandbox.Config {
	return sandbox.Config{
		Image:       c.SandboxImage,
		ExecTimeout: c.SandboxTimeout,
		Memory:      c.SandboxMemory,
		CPUs:        c.SandboxCPUs,
	}
}

// Tracing assembles the tracer provider settings.
func (c *Config) Tracing() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:        c.TracingEnabled,
		Exporter:       c.TracingExporter,
		OTLPEndpoint:   c.TracingOTLP,
		ZipkinEndpoint: c.TracingZipkin,
		SampleRate:     c.TracingSampleRate,
		ServiceName:    "vps-agent",
		ServiceVersion: version.Version,
	}
}
