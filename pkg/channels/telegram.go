package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/zhaopengme/statsbot/pkg/botapi"
	"github.com/zhaopengme/statsbot/pkg/config"
	"github.com/zhaopengme/statsbot/pkg/logger"
)

// Telegram rejects messages longer than 4096 characters; keep some headroom.
const maxMessageLength = 4000

var allowedUpdates = []string{"message", "callback_query"}

// TelegramClient is the Bot API transport: it serves getUpdates to the poller
// and carries every outbound call the handlers make.
type TelegramClient struct {
	bot     *telego.Bot
	limiter *rate.Limiter
}

func NewTelegramClient(cfg config.TelegramConfig) (*TelegramClient, error) {
	// The HTTP timeout must outlast the long-poll timeout.
	httpClient := &http.Client{
		Timeout: cfg.PollTimeout() + cfg.PollMargin() + 10*time.Second,
	}

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		}
	} else if os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" {
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		}
	}

	bot, err := telego.NewBot(cfg.Token, telego.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &TelegramClient{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
	}, nil
}

func (c *TelegramClient) Username() string {
	return c.bot.Username()
}

// GetUpdates performs one getUpdates call. offset 0 leaves the offset unset.
func (c *TelegramClient) GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]botapi.RawUpdate, error) {
	updates, err := c.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	out := make([]botapi.RawUpdate, 0, len(updates))
	for _, u := range updates {
		raw, err := toRawUpdate(u)
		if err != nil {
			logger.WarnCF("telegram", "Skipping update that failed to re-encode", map[string]interface{}{
				"update_id": u.UpdateID,
				"error":     err.Error(),
			})
			// Keep the id so the cursor still moves past it.
			raw = botapi.RawUpdate{UpdateID: u.UpdateID}
		}
		out = append(out, raw)
	}
	return out, nil
}

func (c *TelegramClient) PostMessage(ctx context.Context, chatID int64, text string, opts ...botapi.SendOption) error {
	o := botapi.ApplySendOptions(opts)

	markup, err := inlineKeyboard(o.Keyboard)
	if err != nil {
		return err
	}

	chunks := splitMessage(text, maxMessageLength)
	var lastErr error
	for i, chunk := range chunks {
		params := &telego.SendMessageParams{
			ChatID: tu.ID(chatID),
			Text:   chunk,
		}
		if !o.PlainText {
			params.ParseMode = telego.ModeHTML
		}
		// The keyboard rides on the last chunk.
		if markup != nil && i == len(chunks)-1 {
			params.ReplyMarkup = markup
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err = c.bot.SendMessage(ctx, params); err != nil {
			if params.ParseMode == "" {
				lastErr = classifyError(err)
				continue
			}
			logger.ErrorCF("telegram", "HTML parse failed or other error, falling back to plain text", map[string]interface{}{
				"error":       err.Error(),
				"chunk_index": i,
			})
			params.ParseMode = ""
			if _, err = c.bot.SendMessage(ctx, params); err != nil {
				lastErr = classifyError(err)
			}
		}
	}
	return lastErr
}

func (c *TelegramClient) AnswerCallback(ctx context.Context, callbackID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
	})
	if err != nil {
		return classifyError(err)
	}
	return nil
}

func (c *TelegramClient) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts ...botapi.SendOption) error {
	o := botapi.ApplySendOptions(opts)

	markup, err := inlineKeyboard(o.Keyboard)
	if err != nil {
		return err
	}

	params := &telego.EditMessageTextParams{
		ChatID:      tu.ID(chatID),
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: markup,
	}
	if !o.PlainText {
		params.ParseMode = telego.ModeHTML
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.bot.EditMessageText(ctx, params); err != nil {
		return classifyError(err)
	}
	return nil
}

func (c *TelegramClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	})
	if err != nil {
		return classifyError(err)
	}
	return nil
}

// SetCommands publishes the command menu shown by Telegram clients.
func (c *TelegramClient) SetCommands(ctx context.Context, commands []botapi.CommandInfo) error {
	list := make([]telego.BotCommand, 0, len(commands))
	for _, cmd := range commands {
		list = append(list, telego.BotCommand{
			Command:     cmd.Command,
			Description: cmd.Description,
		})
	}
	if err := c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: list}); err != nil {
		return classifyError(err)
	}
	return nil
}

// MemberCount returns the chat's current member (subscriber) count.
func (c *TelegramClient) MemberCount(ctx context.Context, chatID int64) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	n, err := c.bot.GetChatMemberCount(ctx, &telego.GetChatMemberCountParams{
		ChatID: tu.ID(chatID),
	})
	if err != nil {
		return 0, classifyError(err)
	}
	if n == nil {
		return 0, fmt.Errorf("empty member count for chat %d", chatID)
	}
	return *n, nil
}

// classifyError marks errors a retry cannot fix: a revoked or wrong token
// yields 401, a malformed bot URL 404.
func classifyError(err error) error {
	var apiErr *ta.Error
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode {
		case http.StatusUnauthorized, http.StatusNotFound:
			return fmt.Errorf("%w: %d %s", botapi.ErrFatal, apiErr.ErrorCode, apiErr.Description)
		}
	}
	return err
}

// toRawUpdate re-encodes a decoded telego update into the bot's raw form, so
// parsing stays in one place.
func toRawUpdate(u telego.Update) (botapi.RawUpdate, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return botapi.RawUpdate{}, fmt.Errorf("encode update %d: %w", u.UpdateID, err)
	}
	var raw botapi.RawUpdate
	if err := json.Unmarshal(data, &raw); err != nil {
		return botapi.RawUpdate{}, fmt.Errorf("decode update %d: %w", u.UpdateID, err)
	}
	return raw, nil
}

func inlineKeyboard(rows [][]botapi.Button) (*telego.InlineKeyboardMarkup, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	keyboard := make([][]telego.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			data, err := botapi.EncodePayload(b.Data)
			if err != nil {
				return nil, err
			}
			buttons = append(buttons, tu.InlineKeyboardButton(b.Text).WithCallbackData(data))
		}
		keyboard = append(keyboard, buttons)
	}
	return tu.InlineKeyboard(keyboard...), nil
}

// splitMessage cuts text on line boundaries into chunks of at most maxLength
// bytes. A single line longer than maxLength is cut mid-line at a rune
// boundary.
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLength {
			flush()
			cut := maxLength
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}

		extra := len(line)
		if current.Len() > 0 {
			extra++
		}
		if current.Len()+extra > maxLength {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	flush()

	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
