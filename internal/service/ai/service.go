package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"chatdesk/internal/config"
	"chatdesk/internal/models"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// Streamer opens a response stream for a conversation history.
type Streamer interface {
	StreamChat(ctx context.Context, history []models.Message, settings models.Settings) (DeltaReader, error)
}

// Service is the provider adapter. It holds no conversation state; every
// call builds a fresh chat model from the settings it is given.
type Service struct {
	httpClient *http.Client
	overrides  atomic.Pointer[map[string]config.ProviderConfig]
}

type Option func(*Service)

// WithHTTPClient sets the client used for provider requests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewService builds the adapter with per-provider overrides from config.
func NewService(providers map[string]config.ProviderConfig, opts ...Option) *Service {
	s := &Service{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(s)
	}
	s.SetProviders(providers)
	return s
}

// SetProviders swaps the provider overrides, e.g. after a config reload.
func (s *Service) SetProviders(providers map[string]config.ProviderConfig) {
	copied := make(map[string]config.ProviderConfig, len(providers))
	for name, p := range providers {
		copied[name] = p
	}
	s.overrides.Store(&copied)
}

// Resolve validates settings and returns the request target.
func (s *Service) Resolve(settings models.Settings) (Endpoint, error) {
	return resolve(settings, *s.overrides.Load())
}

// StreamChat sends history to the configured provider and returns the
// response as a delta stream. Configuration problems are reported before
// any network call.
func (s *Service) StreamChat(ctx context.Context, history []models.Message, settings models.Settings) (DeltaReader, error) {
	ep, err := s.Resolve(settings)
	if err != nil {
		return nil, err
	}
	chatModel, err := s.newChatModel(ctx, ep)
	if err != nil {
		return nil, &TransportError{Provider: ep.Provider, Err: err}
	}
	slog.Debug("opening provider stream", "provider", ep.Provider, "model", ep.Model, "messages", len(history), "native", ep.Native)
	reader, err := chatModel.Stream(ctx, toSchemaMessages(history))
	if err != nil {
		return nil, &TransportError{Provider: ep.Provider, Err: err}
	}
	return newDeltaStream(ep.Provider, reader), nil
}

func (s *Service) newChatModel(ctx context.Context, ep Endpoint) (model.BaseChatModel, error) {
	if ep.Native {
		return s.newGeminiModel(ctx, ep)
	}
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:    ep.BaseURL,
		APIKey:     ep.APIKey,
		Model:      ep.Model,
		HTTPClient: clientWithHeaders(s.httpClient, ep.Headers),
	})
	if err != nil {
		return nil, fmt.Errorf("init openai compatible model: %w", err)
	}
	return chatModel, nil
}

func (s *Service) newGeminiModel(ctx context.Context, ep Endpoint) (model.BaseChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:     ep.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: s.httpClient,
	}
	if ep.BaseURL != providerTable[models.ProviderGemini].baseURL {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: ep.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: client,
		Model:  ep.Model,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini model: %w", err)
	}
	return chatModel, nil
}
