package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"chatdesk/internal/config"
	"chatdesk/internal/models"

	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Path    string
	Auth    string
	Referer string
	Title   string
	Body    map[string]any
}

func sseServer(t *testing.T, status int, chunks []string) (*httptest.Server, *atomic.Int32, chan capturedRequest) {
	t.Helper()
	hits := new(atomic.Int32)
	requests := make(chan capturedRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		requests <- capturedRequest{
			Path:    r.URL.Path,
			Auth:    r.Header.Get("Authorization"),
			Referer: r.Header.Get("HTTP-Referer"),
			Title:   r.Header.Get("X-Title"),
			Body:    body,
		}
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"auth_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			payload := fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, c)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
		fmt.Fprint(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	t.Cleanup(srv.Close)
	return srv, hits, requests
}

func TestStreamChatOpenAICompatible(t *testing.T) {
	srv, _, requests := sseServer(t, http.StatusOK, []string{"Hel", "lo"})

	svc := NewService(map[string]config.ProviderConfig{
		"openrouter": {BaseURL: srv.URL + "/api/v1"},
	}, WithHTTPClient(srv.Client()))

	settings := models.DefaultSettings()
	settings.OpenRouterKey = "secret"
	history := []models.Message{models.NewMessage(models.RoleUser, "Hi", nil)}

	stream, err := svc.StreamChat(context.Background(), history, settings)
	require.NoError(t, err)
	defer stream.Close()

	frags, err := drain(t, stream)
	require.NoError(t, err)
	require.Equal(t, "Hello", strings.Join(frags, ""))

	req := <-requests
	require.Equal(t, "/api/v1/chat/completions", req.Path)
	require.Equal(t, "Bearer secret", req.Auth)
	require.Equal(t, "http://localhost:5173", req.Referer)
	require.Equal(t, "Local AI Client", req.Title)
	require.Equal(t, "openai/gpt-3.5-turbo", req.Body["model"])
	require.Equal(t, true, req.Body["stream"])
	msgs, ok := req.Body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
}

func TestStreamChatMissingKeyMakesNoRequest(t *testing.T) {
	srv, hits, _ := sseServer(t, http.StatusOK, nil)
	svc := NewService(map[string]config.ProviderConfig{
		"openai": {BaseURL: srv.URL},
	}, WithHTTPClient(srv.Client()))

	settings := models.DefaultSettings()
	settings.Provider = models.ProviderOpenAI

	_, err := svc.StreamChat(context.Background(), nil, settings)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.Zero(t, hits.Load())
}

func TestStreamChatHTTPErrorIsTransportError(t *testing.T) {
	srv, _, _ := sseServer(t, http.StatusUnauthorized, nil)
	svc := NewService(nil, WithHTTPClient(srv.Client()))

	settings := models.DefaultSettings()
	settings.Provider = models.ProviderLocal
	settings.LocalURL = srv.URL + "/v1"

	stream, err := svc.StreamChat(context.Background(), []models.Message{models.NewMessage(models.RoleUser, "Hi", nil)}, settings)
	if err == nil {
		_, err = drain(t, stream)
		stream.Close()
	}
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr), "got %v", err)
	require.Equal(t, models.ProviderLocal, transportErr.Provider)
}

func TestSetProvidersSwapsOverrides(t *testing.T) {
	svc := NewService(nil)
	settings := models.DefaultSettings()
	settings.OpenRouterKey = "k"

	ep, err := svc.Resolve(settings)
	require.NoError(t, err)
	require.Equal(t, "https://openrouter.ai/api/v1", ep.BaseURL)

	svc.SetProviders(map[string]config.ProviderConfig{"openrouter": {BaseURL: "http://mirror"}})
	ep, err = svc.Resolve(settings)
	require.NoError(t, err)
	require.Equal(t, "http://mirror", ep.BaseURL)
}
