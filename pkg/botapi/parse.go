package botapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

type wireOrigin struct {
	Type       string `json:"type"`
	Chat       *Chat  `json:"chat,omitempty"`
	SenderChat *Chat  `json:"sender_chat,omitempty"`
}

type wireMessage struct {
	MessageID       int         `json:"message_id"`
	From            *Peer       `json:"from,omitempty"`
	Chat            Chat        `json:"chat"`
	Date            int64       `json:"date"`
	Text            string      `json:"text,omitempty"`
	Entities        []Entity    `json:"entities,omitempty"`
	ForwardOrigin   *wireOrigin `json:"forward_origin,omitempty"`
	ForwardFromChat *Chat       `json:"forward_from_chat,omitempty"`
}

type wireCallback struct {
	ID      string          `json:"id"`
	From    *Peer           `json:"from,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
	Data    string          `json:"data,omitempty"`
}

// ParseMessage decodes a Bot API message object.
func ParseMessage(raw json.RawMessage) (*Message, error) {
	var wm wireMessage
	if err := json.Unmarshal(raw, &wm); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	m := &Message{
		MessageID: wm.MessageID,
		Text:      wm.Text,
		Chat:      wm.Chat,
		From:      wm.From,
		Date:      wm.Date,
		Entities:  wm.Entities,
	}

	if fc := forwardedFrom(&wm); fc != nil {
		m.ForwardFromChat = &ForwardFromChat{
			ChatID:   fc.ID,
			Title:    fc.Title,
			Username: fc.Username,
			Type:     fc.Type,
		}
	}

	m.Command = m.parseCommand()
	return m, nil
}

func forwardedFrom(wm *wireMessage) *Chat {
	if o := wm.ForwardOrigin; o != nil {
		switch o.Type {
		case "channel":
			if o.Chat != nil {
				return o.Chat
			}
		case "chat":
			if o.SenderChat != nil {
				return o.SenderChat
			}
		}
	}
	return wm.ForwardFromChat
}

// ParseCallback decodes a Bot API callback_query object. The data string is
// decoded once as a JSON object; numbers are kept as json.Number.
func ParseCallback(raw json.RawMessage) (*Callback, error) {
	var wc wireCallback
	if err := json.Unmarshal(raw, &wc); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}

	cb := &Callback{ID: wc.ID, From: wc.From}

	if len(wc.Message) > 0 && !bytes.Equal(wc.Message, []byte("null")) {
		msg, err := ParseMessage(wc.Message)
		if err != nil {
			return nil, err
		}
		cb.Message = msg
	}

	if wc.Data != "" {
		data, err := DecodePayload(wc.Data)
		if err != nil {
			return nil, err
		}
		cb.Data = data
	}

	return cb, nil
}

// DecodePayload decodes serialized callback data.
func DecodePayload(data string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode callback data %q: %w", data, err)
	}
	return payload, nil
}

// EncodePayload serializes a callback payload for an inline button.
func EncodePayload(payload map[string]any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode callback data: %w", err)
	}
	return string(b), nil
}

// EntitiesByType returns the message entities of the given type, in order.
func (m *Message) EntitiesByType(entityType string) []Entity {
	var out []Entity
	for _, e := range m.Entities {
		if e.Type == entityType {
			out = append(out, e)
		}
	}
	return out
}

// EntityText returns the entity's text without its leading sigil ("/" or "#").
// Offsets and lengths are UTF-16 code units.
func (m *Message) EntityText(e Entity) string {
	return utf16Slice(m.Text, e.Offset+1, e.Offset+e.Length)
}

// Tags returns the lower-cased hashtags of the message.
func (m *Message) Tags() []string {
	var tags []string
	for _, e := range m.EntitiesByType(EntityHashtag) {
		tags = append(tags, strings.ToLower(m.EntityText(e)))
	}
	return tags
}

func (m *Message) parseCommand() *Command {
	entities := m.EntitiesByType(EntityBotCommand)
	if len(entities) == 0 || m.Text == "" {
		return nil
	}
	e := entities[0]

	name := strings.ToLower(m.EntityText(e))
	name, username, _ := strings.Cut(name, "@")
	if name == "" {
		return nil
	}

	rest := utf16Slice(m.Text, e.Offset+e.Length, -1)

	return &Command{
		Name:     name,
		Params:   strings.Fields(rest),
		Username: username,
		Entity:   e,
	}
}

// utf16Slice returns s[from:to] measured in UTF-16 code units. to < 0 means
// the end of the string. Out-of-range bounds are clamped.
func utf16Slice(s string, from, to int) string {
	units := utf16.Encode([]rune(s))
	if to < 0 || to > len(units) {
		to = len(units)
	}
	if from < 0 {
		from = 0
	}
	if from >= to {
		return ""
	}
	return string(utf16.Decode(units[from:to]))
}

// String returns the payload value under key as a string.
func (c *Callback) String(key string) (string, bool) {
	v, ok := c.Data[key]
	if !ok {
		return "", false
	}
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	default:
		return "", false
	}
}

// Int64 returns the payload value under key as an int64.
func (c *Callback) Int64(key string) (int64, bool) {
	v, ok := c.Data[key]
	if !ok {
		return 0, false
	}
	switch v := v.(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
