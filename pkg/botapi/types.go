// Package botapi holds the bot's own view of Telegram updates and the narrow
// interfaces the rest of the bot uses to talk to the Bot API.
package botapi

import (
	"encoding/json"
)

// Entity types the bot cares about.
const (
	EntityBotCommand = "bot_command"
	EntityHashtag    = "hashtag"
)

// RawUpdate is one undecoded update as delivered by getUpdates.
type RawUpdate struct {
	UpdateID      int             `json:"update_id"`
	Message       json.RawMessage `json:"message,omitempty"`
	CallbackQuery json.RawMessage `json:"callback_query,omitempty"`
}

// Update is either a *Message or a *Callback.
type Update interface {
	// ChatID is the chat the update originated from, 0 if unknown.
	ChatID() int64
	isUpdate()
}

type Chat struct {
	ID       int64  `json:"id"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
	Type     string `json:"type"`
}

type Peer struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

type Entity struct {
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	Type   string `json:"type"`
}

// ForwardFromChat is the channel or group a message was forwarded from.
type ForwardFromChat struct {
	ChatID   int64
	Title    string
	Username string
	Type     string
}

// Command is the bot command carried by a message, e.g. "/stats@mybot 42".
type Command struct {
	Name     string
	Params   []string
	Username string
	Entity   Entity
}

type Message struct {
	MessageID       int
	Text            string
	Chat            Chat
	From            *Peer
	Date            int64
	Entities        []Entity
	ForwardFromChat *ForwardFromChat

	// Command is derived from Entities when the message is parsed.
	Command *Command
}

func (m *Message) ChatID() int64 { return m.Chat.ID }
func (m *Message) isUpdate()     {}

type Callback struct {
	ID      string
	From    *Peer
	Message *Message
	Data    map[string]any
}

func (c *Callback) ChatID() int64 {
	if c.Message == nil {
		return 0
	}
	return c.Message.Chat.ID
}

func (c *Callback) isUpdate() {}

// CommandInfo is a (key, description) pair published as the bot's command menu.
type CommandInfo struct {
	Command     string
	Description string
}
