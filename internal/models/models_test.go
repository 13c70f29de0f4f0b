package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTruncateTitle(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"short", "Hello", "Hello"},
		{"exact", strings.Repeat("a", 30), strings.Repeat("a", 30)},
		{"long", strings.Repeat("b", 45), strings.Repeat("b", 30)},
		{"multibyte", strings.Repeat("日本", 20), strings.Repeat("日本", 15)},
		{"emoji", strings.Repeat("🙂", 31), strings.Repeat("🙂", 30)},
	}
	for _, tc := range cases {
		if got := TruncateTitle(tc.in); got != tc.want {
			t.Fatalf("%s: TruncateTitle = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestDeriveAndSnapshotTitle(t *testing.T) {
	long := "Explain the difference between goroutines and threads"
	cases := []struct {
		name     string
		messages []Message
		derive   string
		snapshot string
	}{
		{"empty", nil, "", ""},
		{"short", []Message{{Content: "Hi"}}, "Hi", "Hi"},
		{"long", []Message{{Content: long}}, long[:30], long[:30] + "..."},
		{"skips attachment only", []Message{{Content: ""}, {Content: "Second"}}, "Second", "Second"},
		{"multibyte long", []Message{{Content: strings.Repeat("é", 31)}}, strings.Repeat("é", 30), strings.Repeat("é", 30) + "..."},
	}
	for _, tc := range cases {
		if got := DeriveTitle(tc.messages); got != tc.derive {
			t.Fatalf("%s: DeriveTitle = %q, want %q", tc.name, got, tc.derive)
		}
		if got := SnapshotTitle(tc.messages); got != tc.snapshot {
			t.Fatalf("%s: SnapshotTitle = %q, want %q", tc.name, got, tc.snapshot)
		}
	}
}

func TestDisplayTitle(t *testing.T) {
	if got := (Session{Title: "  "}).DisplayTitle(); got != "New Conversation" {
		t.Fatalf("blank title shown as %q", got)
	}
	if got := (Session{Title: "Plans"}).DisplayTitle(); got != "Plans" {
		t.Fatalf("title shown as %q", got)
	}
}

func TestDecodeDataURL(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		mime    string
		data    string
		wantErr bool
	}{
		{"base64", "data:image/png;base64,cG5n", "image/png", "png", false},
		{"plain", "data:text/plain,hello", "text/plain", "hello", false},
		{"no prefix", "image/png;base64,cG5n", "", "", true},
		{"no comma", "data:image/png;base64", "", "", true},
		{"bad base64", "data:image/png;base64,!!!", "", "", true},
	}
	for _, tc := range cases {
		mime, data, err := DecodeDataURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if mime != tc.mime || string(data) != tc.data {
			t.Fatalf("%s: got %q %q, want %q %q", tc.name, mime, data, tc.mime, tc.data)
		}
	}
}

func TestNewAttachmentRoundTrip(t *testing.T) {
	att := NewAttachment("a.png", "", []byte("\x89PNG\r\n\x1a\n rest"))
	if att.MimeType != "image/png" || !att.IsImage() {
		t.Fatalf("expected sniffed png, got %q", att.MimeType)
	}
	mime, data, err := DecodeDataURL(att.Content)
	if err != nil || mime != "image/png" || string(data) != "\x89PNG\r\n\x1a\n rest" {
		t.Fatalf("content does not decode back: %q %q %v", mime, data, err)
	}
}

func TestAttachmentFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	att, err := AttachmentFromFile(path)
	if err != nil {
		t.Fatalf("from file: %v", err)
	}
	if att.Name != "notes.json" || att.MimeType != "application/json" || att.IsImage() {
		t.Fatalf("unexpected attachment %+v", att)
	}
	if _, err := AttachmentFromFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSettingsPatchApply(t *testing.T) {
	base := DefaultSettings()
	provider := ProviderDeepSeek
	key := "sk-d"
	got, err := SettingsPatch{Provider: &provider, DeepSeekKey: &key}.Apply(base)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Provider != ProviderDeepSeek || got.DeepSeekKey != "sk-d" || got.SelectedModel != base.SelectedModel {
		t.Fatalf("unexpected settings %+v", got)
	}
	if got.KeyFor(ProviderDeepSeek) != "sk-d" || got.KeyFor(ProviderLocal) != "" {
		t.Fatalf("KeyFor mismatch")
	}

	bogus := Provider("anthropic")
	unchanged, err := SettingsPatch{Provider: &bogus, DeepSeekKey: &key}.Apply(base)
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if unchanged != base {
		t.Fatalf("failed patch must not change settings: %+v", unchanged)
	}
}

func TestStateCloneDoesNotAlias(t *testing.T) {
	st := NewState()
	st.Messages = append(st.Messages, NewMessage(RoleUser, "hi", []Attachment{{Name: "a"}}))
	st.Sessions = append(st.Sessions, Session{ID: "s1", Messages: CloneMessages(st.Messages)})
	st.CurrentSessionID = "s1"

	cp := st.Clone()
	cp.Messages[0].Content = "changed"
	cp.Messages[0].Attachments[0].Name = "b"
	cp.Sessions[0].Messages[0].Content = "changed"

	if st.Messages[0].Content != "hi" || st.Messages[0].Attachments[0].Name != "a" || st.Sessions[0].Messages[0].Content != "hi" {
		t.Fatalf("clone aliases the original")
	}
	if st.SessionIndex("s1") != 0 || st.SessionIndex("") != -1 || st.SessionIndex("nope") != -1 {
		t.Fatalf("SessionIndex mismatch")
	}
}

func TestNewIDOrdered(t *testing.T) {
	prev := NewID()
	for i := 0; i < 100; i++ {
		next := NewID()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}
