package cmd

import (
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/botchat/internal/config"
	"github.com/nextlevelbuilder/botchat/internal/providers"
)

const gatewayProviderName = "openrouter"

// setupModels registers the configured backends and returns the router that
// maps bot model kinds onto them. OpenRouter is the gateway for every kind;
// with routing.native_claude, claude bots go to the Anthropic SDK instead.
func setupModels(cfg *config.Config) (*providers.Registry, *providers.ModelRouter, error) {
	registry := providers.NewRegistry()

	if cfg.Providers.OpenRouter.APIKey == "" {
		return nil, nil, fmt.Errorf("BOTCHAT_OPENROUTER_API_KEY is not set")
	}
	base := cfg.Providers.OpenRouter.APIBase
	if base == "" {
		base = providers.DefaultOpenRouterBase
	}
	registry.Register(providers.NewOpenAIProvider(gatewayProviderName, cfg.Providers.OpenRouter.APIKey, base, cfg.Routing.OrchestratorModel))
	slog.Info("registered provider", "name", gatewayProviderName)

	router := providers.NewModelRouter(registry, gatewayProviderName)

	if cfg.Providers.Anthropic.APIKey != "" {
		var opts []providers.AnthropicOption
		if cfg.Providers.Anthropic.APIBase != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(cfg.Providers.Anthropic.APIBase))
		}
		p := providers.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, opts...)
		registry.Register(p)
		slog.Info("registered provider", "name", p.Name())

		if cfg.Routing.NativeClaude {
			router.Override(providers.ModelClaude, providers.Route{Provider: p.Name(), Model: p.DefaultModel()})
			slog.Info("claude bots routed natively", "model", p.DefaultModel())
		}
	} else if cfg.Routing.NativeClaude {
		slog.Warn("routing.native_claude set without BOTCHAT_ANTHROPIC_API_KEY, using the gateway")
	}

	return registry, router, nil
}
