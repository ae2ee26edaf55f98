package chat

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseExport_ArrayShape(t *testing.T) {
	data := []byte(`[
		{"name": "Alex", "type": "personal_chat", "messages": [
			{"from": "Alex", "date": "2025-03-01T10:00:00", "text_entities": [{"text": "hello"}]},
			{"from": "Ren Hwa", "date": "2025-03-01T10:00:05", "text_entities": [{"text": "hi "}, {"text": "there"}]}
		]}
	]`)

	res, err := ParseExport(data, discardLogger())
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if len(res.Chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(res.Chats))
	}

	c := res.Chats[0]
	if c.Name != "Alex" {
		t.Errorf("name = %q", c.Name)
	}
	if len(c.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.Messages))
	}
	if c.Messages[1].Text != "hi there" {
		t.Errorf("entities not concatenated: %q", c.Messages[1].Text)
	}
	want := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if !c.Messages[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", c.Messages[0].Timestamp, want)
	}
}

func TestParseExport_ExportShape(t *testing.T) {
	data := []byte(`{"chats": {"list": [
		{"name": "Bea", "type": "personal_chat", "messages": [
			{"from": "Bea", "date": "2025-03-01T10:00:00", "text_entities": [{"text": "yo"}]}
		]}
	]}}`)

	res, err := ParseExport(data, discardLogger())
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if len(res.Chats) != 1 || res.Chats[0].Name != "Bea" {
		t.Fatalf("unexpected chats: %+v", res.Chats)
	}
}

func TestParseExport_SingleChatShape(t *testing.T) {
	data := []byte(`{"name": "Cal", "type": "personal_chat", "messages": [
		{"from": "Cal", "date": "2025-03-01T10:00:00", "text_entities": [{"text": "one"}]}
	]}`)

	res, err := ParseExport(data, discardLogger())
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if len(res.Chats) != 1 || res.Chats[0].Name != "Cal" {
		t.Fatalf("unexpected chats: %+v", res.Chats)
	}
}

func TestParseExport_Unrecognized(t *testing.T) {
	_, err := ParseExport([]byte(`{"foo": 1}`), discardLogger())
	if !errors.Is(err, ErrUnrecognizedExport) {
		t.Fatalf("expected ErrUnrecognizedExport, got %v", err)
	}
}

func TestParseExport_SkipsMalformedMessages(t *testing.T) {
	data := []byte(`[
		{"name": "Dee", "type": "personal_chat", "messages": [
			{"from": "", "date": "2025-03-01T10:00:00", "text_entities": [{"text": "no sender"}]},
			{"from": "Dee", "date": "", "text_entities": [{"text": "no date"}]},
			{"from": "Dee", "date": "2025-03-01T10:00:00", "text_entities": []},
			{"from": "Dee", "date": "2025-03-01T10:00:03", "text_entities": [{"text": "valid"}]}
		]}
	]`)

	res, err := ParseExport(data, discardLogger())
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if len(res.Chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(res.Chats))
	}
	if len(res.Chats[0].Messages) != 1 {
		t.Errorf("expected 1 valid message, got %d", len(res.Chats[0].Messages))
	}
	// The empty-entities message has no content: counted malformed too.
	if res.MalformedMessages != 3 {
		t.Errorf("malformed = %d, want 3", res.MalformedMessages)
	}
}

func TestParseExport_SkipsGroupAndNamelessChats(t *testing.T) {
	data := []byte(`[
		{"name": "", "type": "personal_chat", "messages": [
			{"from": "X", "date": "2025-03-01T10:00:00", "text_entities": [{"text": "a"}]}
		]},
		{"name": "Work Group", "type": "private_supergroup", "messages": [
			{"from": "X", "date": "2025-03-01T10:00:00", "text_entities": [{"text": "b"}]}
		]},
		{"name": "Eve", "type": "personal_chat", "messages": [
			{"from": "Eve", "date": "2025-03-01T10:00:00", "text_entities": [{"text": "c"}]}
		]}
	]`)

	res, err := ParseExport(data, discardLogger())
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if len(res.Chats) != 1 || res.Chats[0].Name != "Eve" {
		t.Fatalf("unexpected chats: %+v", res.Chats)
	}
	if res.SkippedChats != 2 {
		t.Errorf("skipped = %d, want 2", res.SkippedChats)
	}
}

func TestParseExport_SortsByTimestamp(t *testing.T) {
	data := []byte(`[
		{"name": "Fay", "type": "personal_chat", "messages": [
			{"from": "Fay", "date": "2025-03-01T12:00:00", "text_entities": [{"text": "second"}]},
			{"from": "Fay", "date": "2025-03-01T10:00:00", "text_entities": [{"text": "first"}]}
		]}
	]`)

	res, err := ParseExport(data, discardLogger())
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	msgs := res.Chats[0].Messages
	if msgs[0].Text != "first" || msgs[1].Text != "second" {
		t.Errorf("messages not sorted: %q, %q", msgs[0].Text, msgs[1].Text)
	}
}

func TestParseExport_StickerOnlyMessage(t *testing.T) {
	data := []byte(`[
		{"name": "Gus", "type": "personal_chat", "messages": [
			{"from": "Gus", "date": "2025-03-01T10:00:00", "sticker_emoji": "👍"}
		]}
	]`)

	res, err := ParseExport(data, discardLogger())
	if err != nil {
		t.Fatalf("ParseExport: %v", err)
	}
	if res.Chats[0].Messages[0].Text != "👍" {
		t.Errorf("sticker text = %q", res.Chats[0].Messages[0].Text)
	}
}

func TestBlockText(t *testing.T) {
	b := Block{Messages: []Message{
		{Role: RoleUser, Text: "User>>> hello"},
		{Role: RoleSystem, Text: "System>>> hi"},
	}}
	want := "User>>> hello\nSystem>>> hi"
	if got := b.Text(); got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
	roles := b.Roles()
	if len(roles) != 2 || roles[0] != RoleUser || roles[1] != RoleSystem {
		t.Errorf("Roles() = %v", roles)
	}
}
