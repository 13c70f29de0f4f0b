package models

import "fmt"

// Provider is the closed set of supported LLM backends.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
	ProviderGemini     Provider = "gemini"
	ProviderDeepSeek   Provider = "deepseek"
	ProviderQwen       Provider = "qwen"
	ProviderLocal      Provider = "local"
)

// Providers lists every provider in display order.
var Providers = []Provider{
	ProviderOpenRouter,
	ProviderOpenAI,
	ProviderGemini,
	ProviderDeepSeek,
	ProviderQwen,
	ProviderLocal,
}

// ParseProvider validates a provider name.
func ParseProvider(name string) (Provider, error) {
	for _, p := range Providers {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", name)
}

// Settings is the global client configuration edited from the UI.
type Settings struct {
	Provider      Provider `json:"provider"`
	OpenRouterKey string   `json:"openRouterKey"`
	OpenAIKey     string   `json:"openaiKey"`
	GeminiKey     string   `json:"geminiKey"`
	DeepSeekKey   string   `json:"deepseekKey"`
	QwenKey       string   `json:"qwenKey"`
	SelectedModel string   `json:"selectedModel"`
	LocalURL      string   `json:"localUrl"`
}

// DefaultSettings returns the settings of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Provider:      ProviderOpenRouter,
		SelectedModel: "openai/gpt-3.5-turbo",
		LocalURL:      "http://localhost:11434/v1",
	}
}

// KeyFor returns the stored credential for provider.
func (s Settings) KeyFor(provider Provider) string {
	switch provider {
	case ProviderOpenRouter:
		return s.OpenRouterKey
	case ProviderOpenAI:
		return s.OpenAIKey
	case ProviderGemini:
		return s.GeminiKey
	case ProviderDeepSeek:
		return s.DeepSeekKey
	case ProviderQwen:
		return s.QwenKey
	default:
		return ""
	}
}

// SettingsPatch is a partial settings update; nil fields are left alone.
type SettingsPatch struct {
	Provider      *Provider `json:"provider,omitempty"`
	OpenRouterKey *string   `json:"openRouterKey,omitempty"`
	OpenAIKey     *string   `json:"openaiKey,omitempty"`
	GeminiKey     *string   `json:"geminiKey,omitempty"`
	DeepSeekKey   *string   `json:"deepseekKey,omitempty"`
	QwenKey       *string   `json:"qwenKey,omitempty"`
	SelectedModel *string   `json:"selectedModel,omitempty"`
	LocalURL      *string   `json:"localUrl,omitempty"`
}

// Apply merges the patch over s.
func (p SettingsPatch) Apply(s Settings) (Settings, error) {
	if p.Provider != nil {
		provider, err := ParseProvider(string(*p.Provider))
		if err != nil {
			return s, err
		}
		s.Provider = provider
	}
	assign(&s.OpenRouterKey, p.OpenRouterKey)
	assign(&s.OpenAIKey, p.OpenAIKey)
	assign(&s.GeminiKey, p.GeminiKey)
	assign(&s.DeepSeekKey, p.DeepSeekKey)
	assign(&s.QwenKey, p.QwenKey)
	assign(&s.SelectedModel, p.SelectedModel)
	assign(&s.LocalURL, p.LocalURL)
	return s, nil
}

func assign(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
