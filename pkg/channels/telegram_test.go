package channels

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaopengme/statsbot/pkg/botapi"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"unauthorized", &ta.Error{ErrorCode: 401, Description: "Unauthorized"}, true},
		{"not found", fmt.Errorf("telego: getUpdates: %w", &ta.Error{ErrorCode: 404, Description: "Not Found"}), true},
		{"flood", &ta.Error{ErrorCode: 429, Description: "Too Many Requests"}, false},
		{"network", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			assert.Equal(t, tt.fatal, errors.Is(got, botapi.ErrFatal))
		})
	}
}

func TestToRawUpdate_Message(t *testing.T) {
	u := telego.Update{
		UpdateID: 101,
		Message: &telego.Message{
			MessageID: 7,
			Chat:      telego.Chat{ID: 99, Type: telego.ChatTypePrivate},
			Text:      "/stats 42",
			Entities: []telego.MessageEntity{
				{Type: telego.EntityTypeBotCommand, Offset: 0, Length: 6},
			},
		},
	}

	raw, err := toRawUpdate(u)
	require.NoError(t, err)
	assert.Equal(t, 101, raw.UpdateID)
	assert.Empty(t, raw.CallbackQuery)

	msg, err := botapi.ParseMessage(raw.Message)
	require.NoError(t, err)
	require.NotNil(t, msg.Command)
	assert.Equal(t, "stats", msg.Command.Name)
	assert.Equal(t, []string{"42"}, msg.Command.Params)
	assert.Equal(t, int64(99), msg.ChatID())
}

func TestToRawUpdate_Callback(t *testing.T) {
	u := telego.Update{
		UpdateID: 102,
		CallbackQuery: &telego.CallbackQuery{
			ID:   "cb-1",
			From: telego.User{ID: 5},
			Data: `{"a":"select_channel","cid":42}`,
		},
	}

	raw, err := toRawUpdate(u)
	require.NoError(t, err)

	cb, err := botapi.ParseCallback(raw.CallbackQuery)
	require.NoError(t, err)
	assert.Equal(t, "cb-1", cb.ID)
	cid, ok := cb.Int64("cid")
	require.True(t, ok)
	assert.Equal(t, int64(42), cid)
}

func TestInlineKeyboard(t *testing.T) {
	markup, err := inlineKeyboard(nil)
	require.NoError(t, err)
	assert.Nil(t, markup)

	rows := botapi.Grid([]botapi.Button{
		{Text: "News", Data: map[string]any{"a": "select_channel", "cid": int64(-1001)}},
		{Text: "Blog", Data: map[string]any{"a": "select_channel", "cid": int64(-1002)}},
		{Text: "Close", Data: map[string]any{"a": "close"}},
	}, 2)

	markup, err = inlineKeyboard(rows)
	require.NoError(t, err)
	require.Len(t, markup.InlineKeyboard, 2)
	require.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, "News", markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, `{"a":"select_channel","cid":-1001}`, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, `{"a":"close"}`, markup.InlineKeyboard[1][0].CallbackData)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 100))

	lines := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		lines = append(lines, fmt.Sprintf("line %02d", i))
	}
	text := strings.Join(lines, "\n")

	chunks := splitMessage(text, 40)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 40)
		assert.False(t, strings.HasPrefix(c, "\n"))
	}
	assert.Equal(t, text, strings.Join(chunks, "\n"))
}

func TestSplitMessage_LongLineKeepsRunes(t *testing.T) {
	text := strings.Repeat("я", 30) // 60 bytes
	chunks := splitMessage(text, 25)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 25)
		assert.True(t, strings.HasPrefix(c, "я"))
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}
