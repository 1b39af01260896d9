package main

import (
	"github.com/rs/zerolog/log"

	"github.com/Rrens/streamchat/internal/config"
	"github.com/Rrens/streamchat/internal/llm"
	"github.com/Rrens/streamchat/internal/llm/anthropic"
	"github.com/Rrens/streamchat/internal/llm/echo"
	"github.com/Rrens/streamchat/internal/llm/gemini"
	"github.com/Rrens/streamchat/internal/llm/ollama"
	"github.com/Rrens/streamchat/internal/llm/openai"
)

// newLLMRouter registers every provider; unconfigured ones stay listed but unusable
func newLLMRouter(cfg config.LLMConfig) *llm.Router {
	router := llm.NewRouter(cfg.DefaultProvider)

	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.DefaultProvider)

	router.RegisterProvider(echo.NewProvider(cfg.Echo.Delay))
	router.RegisterProvider(ollama.NewProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel))
	router.RegisterProvider(openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL))
	router.RegisterProvider(openai.NewDeepSeekProvider(cfg.DeepSeek.APIKey, cfg.DeepSeek.Model, cfg.DeepSeek.BaseURL))
	router.RegisterProvider(anthropic.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model))
	router.RegisterProvider(gemini.NewProvider(cfg.Gemini))

	if _, err := router.GetProvider(""); err != nil {
		log.Warn().Err(err).Msg("Default LLM provider is not usable; streaming requests will fail")
	}
	for _, name := range router.ListProviders() {
		log.Info().Str("provider", name).Msg("LLM provider ready")
	}

	return router
}
