package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"
)

// Client sends messages through one Telegram bot, throttled to ratePerSecond.
type Client struct {
	bot     *bot.Bot
	limiter *rate.Limiter
}

// NewClient builds the bot once. serverURL may be empty for the public API.
func NewClient(token string, ratePerSecond int, serverURL string) (*Client, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	opts := []bot.Option{bot.WithSkipGetMe()}
	if serverURL != "" {
		opts = append(opts, bot.WithServerURL(serverURL))
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return &Client{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
	}, nil
}

// ParseChatID accepts a numeric chat id or an @channel username.
func ParseChatID(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "@") && len(raw) > 1 {
		return raw, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid telegram chat id %q", raw)
	}
	return id, nil
}

// Format renders subject and body as Telegram HTML.
func Format(subject, body string) string {
	if subject == "" {
		return html.EscapeString(body)
	}
	return "<b>" + html.EscapeString(subject) + "</b>\n" + html.EscapeString(body)
}

func (c *Client) Send(ctx context.Context, chatID any, subject, body string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      Format(subject, body),
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %v: %w", chatID, err)
	}
	return nil
}

// IsRejected reports whether Telegram refused the message in a way a retry
// cannot fix.
func IsRejected(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) || errors.Is(err, bot.ErrorForbidden) || errors.Is(err, bot.ErrorUnauthorized)
}
