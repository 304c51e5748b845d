package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            18790,
			MaxMessageChars: 4000,
			RateLimitRPM:    30,
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "~/.botchat/botchat.db",
		},
		Providers: ProvidersConfig{
			OpenRouter: ProviderConfig{APIBase: "https://openrouter.ai/api/v1"},
		},
		Routing: RoutingConfig{
			WindowSize:          10,
			MaxParallelReplies:  4,
			OrchestratorModel:   "openai/gpt-4o-mini",
			OrchestratorTemp:    0.3,
			OrchestratorTimeout: "15s",
			ReplyTemp:           0.7,
			ReplyMaxTokens:      500,
			GenerationTimeout:   "30s",
			RouteTimeout:        "60s",
			DedupeTTL:           "20m",
		},
		Events: EventsConfig{
			SubjectPrefix: "botchat",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "botchat",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields defaults. A .env.local next to the file is loaded
// first without overriding variables already set.
func Load(path string) (*Config, error) {
	LoadDotEnv(filepath.Join(filepath.Dir(path), ".env.local"))

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadDotEnv loads path into the environment if it exists.
func LoadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	envStr("BOTCHAT_OPENROUTER_API_KEY", &c.Providers.OpenRouter.APIKey)
	envStr("BOTCHAT_OPENROUTER_API_BASE", &c.Providers.OpenRouter.APIBase)
	envStr("BOTCHAT_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("BOTCHAT_ANTHROPIC_API_BASE", &c.Providers.Anthropic.APIBase)
	envStr("BOTCHAT_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("BOTCHAT_HOST", &c.Gateway.Host)
	envInt("BOTCHAT_PORT", &c.Gateway.Port)

	envStr("BOTCHAT_MODE", &c.Database.Mode)
	envStr("BOTCHAT_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("BOTCHAT_SQLITE_PATH", &c.Database.SQLitePath)

	envStr("BOTCHAT_NATS_URL", &c.Events.NATSURL)
	envStr("BOTCHAT_NATS_SUBJECT_PREFIX", &c.Events.SubjectPrefix)

	envStr("BOTCHAT_ORCHESTRATOR_MODEL", &c.Routing.OrchestratorModel)
	envStr("BOTCHAT_DEDUPE_TTL", &c.Routing.DedupeTTL)
	if v := os.Getenv("BOTCHAT_NATIVE_CLAUDE"); v != "" {
		c.Routing.NativeClaude = v == "1" || strings.EqualFold(v, "true")
	}

	// Telemetry
	envStr("BOTCHAT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("BOTCHAT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("BOTCHAT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("BOTCHAT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("BOTCHAT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "1" || strings.EqualFold(v, "true")
	}
}

// Save writes the config to a JSON file. Secrets are never written.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

const secretMask = "***"

// MaskedCopy returns a copy of the config with all secret fields masked.
// Used by doctor output to avoid printing secrets.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp := &Config{
		Gateway:   c.Gateway,
		Database:  c.Database,
		Providers: c.Providers,
		Routing:   c.Routing,
		Events:    c.Events,
		Telemetry: c.Telemetry,
	}
	cp.Gateway.AllowedOrigins = append(FlexibleStringSlice(nil), c.Gateway.AllowedOrigins...)
	if c.Telemetry.Headers != nil {
		cp.Telemetry.Headers = make(map[string]string, len(c.Telemetry.Headers))
		for k, v := range c.Telemetry.Headers {
			cp.Telemetry.Headers[k] = v
		}
	}

	maskNonEmpty(&cp.Providers.OpenRouter.APIKey)
	maskNonEmpty(&cp.Providers.Anthropic.APIKey)
	maskNonEmpty(&cp.Gateway.Token)
	maskNonEmpty(&cp.Database.PostgresDSN)
	maskNonEmpty(&cp.Events.NATSURL)
	for k := range cp.Telemetry.Headers {
		v := cp.Telemetry.Headers[k]
		maskNonEmpty(&v)
		cp.Telemetry.Headers[k] = v
	}
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
