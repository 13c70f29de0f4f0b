package ai

import (
	"net/http"
	"os"
	"strings"

	"chatdesk/internal/config"
	"chatdesk/internal/models"
)

// localAPIKey is sent to local servers, which accept any credential.
const localAPIKey = "not-needed"

// providerSpec describes how to reach one provider.
type providerSpec struct {
	baseURL  string
	needsKey bool
	headers  map[string]string
}

var providerTable = map[models.Provider]providerSpec{
	models.ProviderOpenRouter: {
		baseURL:  "https://openrouter.ai/api/v1",
		needsKey: true,
		headers: map[string]string{
			"HTTP-Referer": "http://localhost:5173",
			"X-Title":      "Local AI Client",
		},
	},
	models.ProviderOpenAI: {
		baseURL:  "https://api.openai.com/v1",
		needsKey: true,
	},
	models.ProviderGemini: {
		baseURL:  "https://generativelanguage.googleapis.com/v1beta/openai/",
		needsKey: true,
	},
	models.ProviderDeepSeek: {
		baseURL:  "https://api.deepseek.com",
		needsKey: true,
	},
	models.ProviderQwen: {
		baseURL:  "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
		needsKey: true,
	},
	models.ProviderLocal: {},
}

// Endpoint is a fully resolved request target.
type Endpoint struct {
	Provider models.Provider
	BaseURL  string
	APIKey   string
	Model    string
	Headers  map[string]string
	// Native selects the genai transport instead of the OpenAI-compatible one.
	Native bool
}

// resolve turns settings into an endpoint, applying config overrides.
func resolve(settings models.Settings, overrides map[string]config.ProviderConfig) (Endpoint, error) {
	spec, ok := providerTable[settings.Provider]
	if !ok {
		return Endpoint{}, &ConfigError{Provider: settings.Provider, Err: ErrUnknownProvider}
	}
	ep := Endpoint{
		Provider: settings.Provider,
		BaseURL:  spec.baseURL,
		Model:    settings.SelectedModel,
		Headers:  spec.headers,
	}
	if settings.Provider == models.ProviderLocal {
		ep.BaseURL = settings.LocalURL
		ep.APIKey = localAPIKey
	} else {
		ep.APIKey = expandEnv(strings.TrimSpace(settings.KeyFor(settings.Provider)))
	}
	if override, ok := overrides[string(settings.Provider)]; ok {
		if override.BaseURL != "" {
			ep.BaseURL = override.BaseURL
		}
		ep.Native = override.Native && settings.Provider == models.ProviderGemini
	}
	if spec.needsKey && ep.APIKey == "" {
		return Endpoint{}, &ConfigError{Provider: settings.Provider, Err: ErrMissingAPIKey}
	}
	return ep, nil
}

// expandEnv resolves a key written as $VAR or ${VAR}. Unset variables
// expand to the empty string.
func expandEnv(value string) string {
	if !strings.HasPrefix(value, "$") {
		return value
	}
	name := strings.TrimPrefix(value, "$")
	if strings.HasPrefix(name, "{") && strings.HasSuffix(name, "}") {
		name = name[1 : len(name)-1]
	}
	return os.Getenv(name)
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

func clientWithHeaders(base *http.Client, headers map[string]string) *http.Client {
	if len(headers) == 0 {
		return base
	}
	client := *base
	rt := client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	client.Transport = &headerTransport{base: rt, headers: headers}
	return &client
}
