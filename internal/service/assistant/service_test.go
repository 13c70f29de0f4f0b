package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"chatdesk/internal/models"
	"chatdesk/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.MemoryStore) {
	t.Helper()
	t.Setenv(APIKeyEnv, "")
	store := storage.NewMemoryStore()
	svc, err := NewService(context.Background(), store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}

func persistedState(t *testing.T, store storage.Persister) *models.State {
	t.Helper()
	payload, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load persisted: %v", err)
	}
	var st models.State
	if err := json.Unmarshal(payload, &st); err != nil {
		t.Fatalf("decode persisted: %v", err)
	}
	return &st
}

func addText(t *testing.T, svc *Service, role models.Role, text string) models.Message {
	t.Helper()
	msg := models.NewMessage(role, text, nil)
	if err := svc.AddMessage(context.Background(), msg); err != nil {
		t.Fatalf("add message: %v", err)
	}
	return msg
}

func TestAddMessageCreatesSession(t *testing.T) {
	svc, store := newTestService(t)
	addText(t, svc, models.RoleUser, "This is a rather long first message for titles")

	sessions := svc.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
	if sessions[0].ID != svc.CurrentSessionID() {
		t.Fatalf("session id should be the current id")
	}
	if sessions[0].Title != "This is a rather long first me" {
		t.Fatalf("unexpected title %q", sessions[0].Title)
	}
	if got := persistedState(t, store); len(got.Messages) != 1 || len(got.Sessions) != 1 {
		t.Fatalf("mutation not flushed: %+v", got)
	}
}

func TestAddMessageEmptyContentKeepsMessageAndFillsTitleLater(t *testing.T) {
	svc, _ := newTestService(t)
	img := models.NewAttachment("a.png", "image/png", []byte{1, 2, 3})
	if err := svc.AddMessage(context.Background(), models.NewMessage(models.RoleUser, "", []models.Attachment{img})); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(svc.Messages()) != 1 {
		t.Fatalf("attachment-only message dropped")
	}
	if title := svc.Sessions()[0].Title; title != "" {
		t.Fatalf("expected empty title, got %q", title)
	}
	addText(t, svc, models.RoleAssistant, "Nice picture")
	if title := svc.Sessions()[0].Title; title != "Nice picture" {
		t.Fatalf("title not filled, got %q", title)
	}
	if len(svc.Sessions()[0].Messages) != 2 {
		t.Fatalf("session copy lost a message")
	}
}

func TestUpdateMessageSingleSourceOfTruth(t *testing.T) {
	svc, store := newTestService(t)
	addText(t, svc, models.RoleUser, "Hi")
	placeholder := addText(t, svc, models.RoleAssistant, "")

	if err := svc.UpdateMessage(context.Background(), placeholder.ID, "Hel"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.UpdateMessage(context.Background(), placeholder.ID, "Hello!"); err != nil {
		t.Fatalf("update: %v", err)
	}

	live := svc.Messages()
	if live[1].Content != "Hello!" || live[1].ID != placeholder.ID {
		t.Fatalf("live list not updated: %+v", live[1])
	}
	session, err := svc.Session(svc.CurrentSessionID())
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if session.Messages[1].Content != "Hello!" {
		t.Fatalf("session copy diverged: %q", session.Messages[1].Content)
	}
	if got := persistedState(t, store); got.Messages[1].Content != "Hello!" {
		t.Fatalf("persisted copy diverged: %q", got.Messages[1].Content)
	}
}

func TestUpdateMessageUnknownIDIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	addText(t, svc, models.RoleUser, "Hi")
	before := svc.Snapshot()
	if err := svc.UpdateMessage(context.Background(), "missing", "x"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if svc.Messages()[0].Content != before.Messages[0].Content {
		t.Fatalf("state changed")
	}
}

func TestSetThinkingTiming(t *testing.T) {
	svc, _ := newTestService(t)
	msg := addText(t, svc, models.RoleAssistant, "<think>x</think>y")
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := svc.SetThinkingTiming(context.Background(), msg.ID, start, 1500*time.Millisecond); err != nil {
		t.Fatalf("set timing: %v", err)
	}
	got := svc.Messages()[0]
	if got.ThinkingStartTime == nil || !got.ThinkingStartTime.Equal(start) || got.ThinkingDuration != 1500 {
		t.Fatalf("timing not recorded: %+v", got)
	}
	session, _ := svc.Session(svc.CurrentSessionID())
	if session.Messages[0].ThinkingDuration != 1500 {
		t.Fatalf("timing not mirrored into session")
	}
}

func TestCreateNewChatSnapshotsConversation(t *testing.T) {
	svc, _ := newTestService(t)
	addText(t, svc, models.RoleUser, "A question that is definitely longer than thirty")
	addText(t, svc, models.RoleAssistant, "answer")
	firstID := svc.CurrentSessionID()

	if err := svc.CreateNewChat(context.Background()); err != nil {
		t.Fatalf("new chat: %v", err)
	}
	if len(svc.Messages()) != 0 {
		t.Fatalf("live list not reset")
	}
	if svc.CurrentSessionID() == "" || svc.CurrentSessionID() == firstID {
		t.Fatalf("expected fresh current id")
	}
	sessions := svc.Sessions()
	if len(sessions) != 1 || sessions[0].ID != firstID {
		t.Fatalf("conversation not kept: %+v", sessions)
	}
	if sessions[0].Title != "A question that is definitely ..." {
		t.Fatalf("unexpected snapshot title %q", sessions[0].Title)
	}
	if len(sessions[0].Messages) != 2 {
		t.Fatalf("snapshot lost messages")
	}
}

func TestCreateNewChatOnEmptyConversation(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.CreateNewChat(context.Background()); err != nil {
		t.Fatalf("new chat: %v", err)
	}
	if len(svc.Sessions()) != 0 {
		t.Fatalf("empty conversation must not create a session")
	}
	if svc.CurrentSessionID() == "" {
		t.Fatalf("expected a current id")
	}
}

func TestNonLossAcrossNewChatAndLoad(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	addText(t, svc, models.RoleUser, "first")
	first := svc.CurrentSessionID()
	if err := svc.CreateNewChat(ctx); err != nil {
		t.Fatalf("new chat: %v", err)
	}
	addText(t, svc, models.RoleUser, "second")
	second := svc.CurrentSessionID()

	for i := 0; i < 3; i++ {
		if err := svc.LoadSession(ctx, first); err != nil {
			t.Fatalf("load first: %v", err)
		}
		if err := svc.CreateNewChat(ctx); err != nil {
			t.Fatalf("new chat: %v", err)
		}
		if err := svc.LoadSession(ctx, second); err != nil {
			t.Fatalf("load second: %v", err)
		}
	}

	ids := map[string]bool{}
	for _, s := range svc.Sessions() {
		ids[s.ID] = true
	}
	if !ids[first] || !ids[second] || len(ids) != 2 {
		t.Fatalf("sessions lost or duplicated: %v", ids)
	}
}

func TestLoadSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addText(t, svc, models.RoleUser, "hello")
	id := svc.CurrentSessionID()
	if err := svc.CreateNewChat(ctx); err != nil {
		t.Fatalf("new chat: %v", err)
	}

	if err := svc.LoadSession(ctx, id); err != nil {
		t.Fatalf("load: %v", err)
	}
	if svc.CurrentSessionID() != id || len(svc.Messages()) != 1 || svc.Messages()[0].Content != "hello" {
		t.Fatalf("session not loaded")
	}

	before := svc.Snapshot()
	if err := svc.LoadSession(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if svc.CurrentSessionID() != before.CurrentSessionID {
		t.Fatalf("unknown id changed state")
	}
}

func TestDeleteSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addText(t, svc, models.RoleUser, "old")
	old := svc.CurrentSessionID()
	if err := svc.CreateNewChat(ctx); err != nil {
		t.Fatalf("new chat: %v", err)
	}
	addText(t, svc, models.RoleUser, "current")
	current := svc.CurrentSessionID()

	if err := svc.DeleteSession(ctx, old); err != nil {
		t.Fatalf("delete old: %v", err)
	}
	if len(svc.Messages()) != 1 || svc.CurrentSessionID() != current {
		t.Fatalf("deleting another session touched the live list")
	}
	if err := svc.DeleteSession(ctx, current); err != nil {
		t.Fatalf("delete current: %v", err)
	}
	if len(svc.Messages()) != 0 || svc.CurrentSessionID() != "" {
		t.Fatalf("deleting the current session must clear it")
	}
	if err := svc.DeleteSession(ctx, current); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestArchiveKeepsSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addText(t, svc, models.RoleUser, "keep me")
	id := svc.CurrentSessionID()

	if err := svc.ArchiveSession(ctx, id); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if s, _ := svc.Session(id); !s.Archived {
		t.Fatalf("expected archived")
	}
	if err := svc.CreateNewChat(ctx); err != nil {
		t.Fatalf("new chat: %v", err)
	}
	if s, _ := svc.Session(id); !s.Archived {
		t.Fatalf("snapshot must keep archived flag")
	}
	if err := svc.UnarchiveSession(ctx, id); err != nil {
		t.Fatalf("unarchive: %v", err)
	}
	if s, _ := svc.Session(id); s.Archived {
		t.Fatalf("expected unarchived")
	}
	if err := svc.ArchiveSession(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestPersistenceFailureKeepsMemoryState(t *testing.T) {
	svc, store := newTestService(t)
	boom := errors.New("disk full")
	store.FailSaves(boom)
	err := svc.AddMessage(context.Background(), models.NewMessage(models.RoleUser, "hi", nil))
	if !errors.Is(err, boom) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(svc.Messages()) != 1 {
		t.Fatalf("memory state must keep the message")
	}
}

func TestHydrateFromPersister(t *testing.T) {
	svc, store := newTestService(t)
	addText(t, svc, models.RoleUser, "remember me")
	id := svc.CurrentSessionID()

	reopened, err := NewService(context.Background(), store)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.CurrentSessionID() != id || len(reopened.Messages()) != 1 {
		t.Fatalf("state not hydrated")
	}
}

func TestResetClearsEverything(t *testing.T) {
	svc, store := newTestService(t)
	addText(t, svc, models.RoleUser, "bye")
	if _, err := svc.UpdateSettings(context.Background(), models.SettingsPatch{SelectedModel: strPtr("x")}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	if err := svc.Reset(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(svc.Sessions()) != 0 || len(svc.Messages()) != 0 || svc.Settings() != models.DefaultSettings() {
		t.Fatalf("store not reset")
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, storage.ErrNoState) {
		t.Fatalf("durable record not cleared: %v", err)
	}
}

func TestSubscribeDeliversLatestState(t *testing.T) {
	svc, _ := newTestService(t)
	ch, cancel := svc.Subscribe()
	defer cancel()

	addText(t, svc, models.RoleUser, "one")
	addText(t, svc, models.RoleUser, "two")

	select {
	case st := <-ch:
		if len(st.Messages) != 2 {
			t.Fatalf("expected latest snapshot with 2 messages, got %d", len(st.Messages))
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot delivered")
	}
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}
}

func TestReadersDoNotAlias(t *testing.T) {
	svc, _ := newTestService(t)
	addText(t, svc, models.RoleUser, "original")
	msgs := svc.Messages()
	msgs[0].Content = "mutated"
	if svc.Messages()[0].Content != "original" {
		t.Fatalf("reader copy aliases store state")
	}
}

func TestUpdateSettings(t *testing.T) {
	svc, store := newTestService(t)
	provider := models.ProviderDeepSeek
	got, err := svc.UpdateSettings(context.Background(), models.SettingsPatch{
		Provider:    &provider,
		DeepSeekKey: strPtr("ds-key"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Provider != provider || got.DeepSeekKey != "ds-key" || got.SelectedModel != "openai/gpt-3.5-turbo" {
		t.Fatalf("partial merge failed: %+v", got)
	}
	if persistedState(t, store).Settings.DeepSeekKey != "ds-key" {
		t.Fatalf("settings not persisted")
	}

	bad := models.Provider("claude")
	if _, err := svc.UpdateSettings(context.Background(), models.SettingsPatch{Provider: &bad}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if svc.Settings().Provider != provider {
		t.Fatalf("failed update changed settings")
	}
}

func TestSettingsKeysEncryptedAtRest(t *testing.T) {
	t.Setenv(APIKeyEnv, strings.Repeat("a", 32))
	store := storage.NewMemoryStore()
	svc, err := NewService(context.Background(), store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.UpdateSettings(context.Background(), models.SettingsPatch{OpenAIKey: strPtr("secret-token")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored := persistedState(t, store).Settings.OpenAIKey
	if stored == "secret-token" || !strings.HasPrefix(stored, encryptedPrefix) {
		t.Fatalf("token stored in plaintext: %q", stored)
	}
	if svc.Settings().OpenAIKey != "secret-token" {
		t.Fatalf("in-memory settings should stay plaintext")
	}

	reopened, err := NewService(context.Background(), store)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Settings().OpenAIKey != "secret-token" {
		t.Fatalf("expected decrypted token, got %q", reopened.Settings().OpenAIKey)
	}
}

func TestSettingsAllowLegacyPlaintext(t *testing.T) {
	t.Setenv(APIKeyEnv, strings.Repeat("b", 32))
	store := storage.NewMemoryStore()
	legacy := models.NewState()
	legacy.Settings.QwenKey = "legacy-token"
	payload, _ := json.Marshal(legacy)
	if err := store.Save(context.Background(), payload); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc, err := NewService(context.Background(), store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Settings().QwenKey != "legacy-token" {
		t.Fatalf("legacy token not readable")
	}
}

func TestEncryptedRecordWithoutKeyFails(t *testing.T) {
	t.Setenv(APIKeyEnv, strings.Repeat("c", 32))
	store := storage.NewMemoryStore()
	svc, err := NewService(context.Background(), store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.UpdateSettings(context.Background(), models.SettingsPatch{GeminiKey: strPtr("g")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	t.Setenv(APIKeyEnv, "")
	if _, err := NewService(context.Background(), store); err == nil {
		t.Fatalf("expected error reading encrypted keys without a key")
	}
}

func strPtr(s string) *string { return &s }
