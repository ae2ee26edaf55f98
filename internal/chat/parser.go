package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ErrUnrecognizedExport is returned when the input JSON matches none of the
// supported export shapes.
var ErrUnrecognizedExport = errors.New("unrecognized chat export structure")

// ErrMalformedMessage marks a message that cannot be used: missing sender,
// missing timestamp, or no tokenizable content. Malformed messages are
// skipped, never fatal.
var ErrMalformedMessage = errors.New("malformed message")

// rawChat mirrors the upstream export schema. Field names are an external
// contract and are consumed as given.
type rawChat struct {
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Messages []rawMessage `json:"messages"`
}

type rawMessage struct {
	From         string       `json:"from"`
	Date         string       `json:"date"`
	TextEntities []textEntity `json:"text_entities"`
	StickerEmoji string       `json:"sticker_emoji"`
}

type textEntity struct {
	Text string `json:"text"`
}

type rawExport struct {
	Chats struct {
		List []json.RawMessage `json:"list"`
	} `json:"chats"`
}

// ParseResult carries the parsed chats plus counts for reporting. Raw holds
// the decoded chat objects as given, re-exported verbatim as raw.json.
type ParseResult struct {
	Chats             []Chat
	Raw               []json.RawMessage
	SkippedChats      int
	MalformedMessages int
}

// Merge appends another result, used when loading a directory of files.
func (r *ParseResult) Merge(other *ParseResult) {
	r.Chats = append(r.Chats, other.Chats...)
	r.Raw = append(r.Raw, other.Raw...)
	r.SkippedChats += other.SkippedChats
	r.MalformedMessages += other.MalformedMessages
}

// ParseExport decodes a raw chat export. Three shapes are accepted: a JSON
// array of chat objects, a full export wrapping them under chats.list, or a
// single chat object.
func ParseExport(data []byte, logger *slog.Logger) (*ParseResult, error) {
	raws, err := decodeRawChats(data)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("%w: no chat objects found", ErrUnrecognizedExport)
	}

	res := &ParseResult{Raw: raws}
	for _, raw := range raws {
		var rc rawChat
		if err := json.Unmarshal(raw, &rc); err != nil {
			res.SkippedChats++
			logger.Warn("skipping undecodable chat object", "error", err)
			continue
		}
		c, malformed, ok := buildChat(rc, logger)
		res.MalformedMessages += malformed
		if !ok {
			res.SkippedChats++
			continue
		}
		res.Chats = append(res.Chats, c)
	}
	return res, nil
}

func decodeRawChats(data []byte) ([]json.RawMessage, error) {
	// Array of chat objects.
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	// Full export with chats.list.
	var exp rawExport
	if err := json.Unmarshal(data, &exp); err == nil && len(exp.Chats.List) > 0 {
		return exp.Chats.List, nil
	}

	// Single chat object.
	var single rawChat
	if err := json.Unmarshal(data, &single); err == nil && single.Name != "" && len(single.Messages) > 0 {
		return []json.RawMessage{json.RawMessage(data)}, nil
	}

	return nil, ErrUnrecognizedExport
}

// buildChat converts one raw chat into a Chat, skipping unusable messages.
// Chats without a name (deleted/anonymous accounts) and non-personal chats
// are dropped entirely.
func buildChat(rc rawChat, logger *slog.Logger) (Chat, int, bool) {
	if rc.Name == "" {
		return Chat{}, 0, false
	}
	// Group chats only carry the target side of the conversation in exports,
	// so they are excluded for now.
	if rc.Type != "" && rc.Type != "personal_chat" {
		return Chat{}, 0, false
	}

	malformed := 0
	var msgs []Message
	for i, rm := range rc.Messages {
		m, err := buildMessage(rm)
		if err != nil {
			malformed++
			logger.Warn("skipping message",
				"chat", rc.Name,
				"index", i,
				"error", err,
			)
			continue
		}
		msgs = append(msgs, m)
	}

	if len(msgs) == 0 {
		return Chat{}, malformed, false
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	return Chat{Name: rc.Name, Type: rc.Type, Messages: msgs}, malformed, true
}

func buildMessage(rm rawMessage) (Message, error) {
	if rm.From == "" {
		return Message{}, fmt.Errorf("%w: missing sender", ErrMalformedMessage)
	}

	// Only text entities and sticker emoji produce tokenizable text; other
	// media (photos, files, voice notes) are skipped.
	var sb strings.Builder
	for _, ent := range rm.TextEntities {
		sb.WriteString(ent.Text)
	}
	sb.WriteString(rm.StickerEmoji)

	// Internal newlines become spaces: newlines delimit merged messages later.
	text := strings.TrimSpace(sb.String())
	text = strings.ReplaceAll(text, "\n", " ")
	if text == "" {
		return Message{}, fmt.Errorf("%w: no text content", ErrMalformedMessage)
	}

	ts, err := parseTimestamp(rm.Date)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return Message{Sender: rm.From, Text: text, Timestamp: ts}, nil
}

// parseTimestamp accepts the export's ISO-8601 second-resolution format,
// with or without a zone offset.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
