package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the botchat server.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Providers ProvidersConfig `json:"providers"`
	Routing   RoutingConfig   `json:"routing"`
	Events    EventsConfig    `json:"events,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Host            string              `json:"host"`
	Port            int                 `json:"port"`
	Token           string              `json:"-"`                           // bearer token, from env BOTCHAT_GATEWAY_TOKEN only
	AllowedOrigins  FlexibleStringSlice `json:"allowed_origins,omitempty"`   // WebSocket origin whitelist (empty = allow all)
	MaxMessageChars int                 `json:"max_message_chars,omitempty"` // max message characters (default 4000)
	RateLimitRPM    int                 `json:"rate_limit_rpm,omitempty"`    // sends per minute per user (default 30, 0 = disabled)
}

// DatabaseConfig selects the store backend.
// PostgresDSN is NEVER read from config.json (secret), only from env BOTCHAT_POSTGRES_DSN.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"`        // "standalone" (default, SQLite) or "managed" (Postgres)
	SQLitePath  string `json:"sqlite_path,omitempty"` // default ~/.botchat/botchat.db
	PostgresDSN string `json:"-"`
}

// IsManagedMode reports whether Postgres should be used.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// ProvidersConfig holds model backend credentials.
type ProvidersConfig struct {
	OpenRouter ProviderConfig `json:"openrouter"`
	Anthropic  ProviderConfig `json:"anthropic"`
}

// ProviderConfig is one backend. APIKey comes from env only.
type ProviderConfig struct {
	APIKey  string `json:"-"`
	APIBase string `json:"api_base,omitempty"`
}

// HasAnyProvider returns true if at least one provider has an API key configured.
func (c *Config) HasAnyProvider() bool {
	return c.Providers.OpenRouter.APIKey != "" || c.Providers.Anthropic.APIKey != ""
}

// RoutingConfig tunes the bot response router. Durations are Go duration strings.
type RoutingConfig struct {
	WindowSize          int     `json:"window_size,omitempty"`              // prior messages in context (default 10)
	MaxParallelReplies  int     `json:"max_parallel_replies,omitempty"`     // concurrent mention replies (default 4)
	OrchestratorModel   string  `json:"orchestrator_model,omitempty"`       // default "openai/gpt-4o-mini"
	OrchestratorTemp    float64 `json:"orchestrator_temperature,omitempty"` // default 0.3
	OrchestratorTimeout string  `json:"orchestrator_timeout,omitempty"`     // default "15s"
	ReplyTemp           float64 `json:"reply_temperature,omitempty"`        // default 0.7
	ReplyMaxTokens      int     `json:"reply_max_tokens,omitempty"`         // default 500
	GenerationTimeout   string  `json:"generation_timeout,omitempty"`       // default "30s"
	RouteTimeout        string  `json:"route_timeout,omitempty"`            // default "60s"
	DedupeTTL           string  `json:"dedupe_ttl,omitempty"`               // default "20m", "0" disables
	NativeClaude        bool    `json:"native_claude,omitempty"`            // send claude bots through the Anthropic SDK
}

// Durations parsed from RoutingConfig, with defaults for empty or invalid values.
func (r RoutingConfig) OrchestratorTimeoutDuration() time.Duration {
	return parseDuration(r.OrchestratorTimeout, 15*time.Second)
}

func (r RoutingConfig) GenerationTimeoutDuration() time.Duration {
	return parseDuration(r.GenerationTimeout, 30*time.Second)
}

func (r RoutingConfig) RouteTimeoutDuration() time.Duration {
	return parseDuration(r.RouteTimeout, 60*time.Second)
}

func (r RoutingConfig) DedupeTTLDuration() time.Duration {
	return parseDuration(r.DedupeTTL, 20*time.Minute)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// EventsConfig configures external event fan-out.
type EventsConfig struct {
	NATSURL       string `json:"-"`                        // from env BOTCHAT_NATS_URL only (may embed credentials)
	SubjectPrefix string `json:"subject_prefix,omitempty"` // default "botchat"
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
// When enabled, spans are exported to an OTLP-compatible backend (Jaeger, Tempo, Datadog, etc.).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317", "https://otel.example.com:4318")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext export (default false, set true for local dev)
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "botchat")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}
