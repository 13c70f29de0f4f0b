package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"chatdesk/internal/config"
	"chatdesk/internal/conversation"
	"chatdesk/internal/service/ai"
	"chatdesk/internal/service/assistant"
	"chatdesk/internal/storage"
)

// app bundles the services shared by every command.
type app struct {
	persister storage.Persister
	store     *assistant.Service
	ai        *ai.Service
	ctrl      *conversation.Controller
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if dir := cfg.BasicConfig.DataDir; dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	persister, err := storage.OpenPersister(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	store, err := assistant.NewService(ctx, persister)
	if err != nil {
		persister.Close()
		return nil, fmt.Errorf("load chat state: %w", err)
	}
	aiService := ai.NewService(cfg.Providers)
	return &app{
		persister: persister,
		store:     store,
		ai:        aiService,
		ctrl:      conversation.NewController(store, aiService, cfg.StreamTimeout()),
	}, nil
}

func (a *app) Close() error {
	return a.persister.Close()
}

// resolveSessionID accepts a full id, a unique prefix of at least four
// characters, or "latest" for the most recently touched session.
func (a *app) resolveSessionID(arg string) (string, error) {
	sessions := a.store.Sessions()
	if arg == "latest" {
		if len(sessions) == 0 {
			return "", assistant.ErrSessionNotFound
		}
		latest := sessions[0]
		for _, s := range sessions[1:] {
			if s.Date.After(latest.Date) {
				latest = s
			}
		}
		return latest.ID, nil
	}
	var match string
	for _, s := range sessions {
		if s.ID == arg {
			return s.ID, nil
		}
		if len(arg) >= 4 && strings.HasPrefix(s.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("session prefix %q is ambiguous", arg)
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", assistant.ErrSessionNotFound, arg)
	}
	return match, nil
}
