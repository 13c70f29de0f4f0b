package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"chatdesk/internal/models"
	"chatdesk/internal/service/assistant"
	"chatdesk/internal/storage"
)

func TestParseSettingsArgs(t *testing.T) {
	patch, err := parseSettingsArgs([]string{"provider=gemini", "model=gemini-2.0-flash", "gemini-key=$GEMINI_API_KEY"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if patch.Provider == nil || *patch.Provider != models.ProviderGemini {
		t.Fatalf("unexpected provider %v", patch.Provider)
	}
	if patch.SelectedModel == nil || *patch.SelectedModel != "gemini-2.0-flash" {
		t.Fatalf("unexpected model %v", patch.SelectedModel)
	}
	if patch.GeminiKey == nil || *patch.GeminiKey != "$GEMINI_API_KEY" {
		t.Fatalf("unexpected key %v", patch.GeminiKey)
	}
	if patch.OpenAIKey != nil {
		t.Fatalf("untouched fields must stay nil")
	}

	if _, err := parseSettingsArgs([]string{"provider"}); err == nil {
		t.Fatalf("expected error for missing value")
	}
	if _, err := parseSettingsArgs([]string{"color=blue"}); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestMaskKey(t *testing.T) {
	cases := map[string]string{
		"":                  "(not set)",
		"$OPENAI_API_KEY":   "$OPENAI_API_KEY",
		"short":             "****",
		"sk-1234567890abcd": "sk-1...abcd",
	}
	for in, want := range cases {
		if got := maskKey(in); got != want {
			t.Fatalf("maskKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAnswerPrinterHidesReasoning(t *testing.T) {
	var buf bytes.Buffer
	p := &answerPrinter{w: &buf}
	content := ""
	for _, delta := range []string{"<think>", "pondering", "</think>", "The ", "answer"} {
		content += delta
		if err := p.update(delta, content); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	p.finish(content)
	if got := buf.String(); got != "The answer\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestAnswerPrinterRaw(t *testing.T) {
	var buf bytes.Buffer
	p := &answerPrinter{w: &buf, raw: true}
	_ = p.update("<think>x</think>", "<think>x</think>")
	_ = p.update("y", "<think>x</think>y")
	p.finish("<think>x</think>y")
	if got := buf.String(); got != "<think>x</think>y\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestLastAnswer(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "q1"},
		{Role: models.RoleAssistant, Content: "<think>hm</think>first"},
		{Role: models.RoleUser, Content: "q2"},
		{Role: models.RoleAssistant, Content: ""},
	}
	got, ok := lastAnswer(msgs)
	if !ok || got != "first" {
		t.Fatalf("lastAnswer = %q, %v", got, ok)
	}
	if _, ok := lastAnswer(msgs[:1]); ok {
		t.Fatalf("expected no answer")
	}
}

func TestResolveSessionID(t *testing.T) {
	t.Setenv(assistant.APIKeyEnv, "")
	ctx := context.Background()
	store, err := assistant.NewService(ctx, storage.NewMemoryStore())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	var ids []string
	for _, text := range []string{"one", "two"} {
		if err := store.AddMessage(ctx, models.NewMessage(models.RoleUser, text, nil)); err != nil {
			t.Fatalf("add message: %v", err)
		}
		ids = append(ids, store.CurrentSessionID())
		if err := store.CreateNewChat(ctx); err != nil {
			t.Fatalf("new chat: %v", err)
		}
	}
	a := &app{store: store}

	got, err := a.resolveSessionID(ids[0])
	if err != nil || got != ids[0] {
		t.Fatalf("full id: %q, %v", got, err)
	}
	got, err = a.resolveSessionID("latest")
	if err != nil || got != ids[1] {
		t.Fatalf("latest: %q, %v", got, err)
	}
	if _, err := a.resolveSessionID("zzzzzzzz"); !errors.Is(err, assistant.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := a.resolveSessionID("ab"); !errors.Is(err, assistant.ErrSessionNotFound) {
		t.Fatalf("short prefixes must not match, got %v", err)
	}
}
