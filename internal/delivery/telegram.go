// Package delivery sends the digest to the Telegram channel and records
// every successful send.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"digestbot/internal/config"
)

// Delivery errors.
var (
	ErrInvalidCredentials = errors.New("telegram rejected the bot credentials")
	ErrSendFailed         = errors.New("telegram send failed")
)

// Sender publishes one message and returns its message id.
type Sender interface {
	Send(ctx context.Context, text string) (string, error)
}

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts messages to a channel through the Bot API.
type Telegram struct {
	api       telegramAPI
	channel   string
	parseMode string
}

// NewTelegram authenticates the bot token against the Bot API.
func NewTelegram(cfg config.Telegram) (*Telegram, error) {
	return newTelegram(cfg, tgbotapi.APIEndpoint, &http.Client{Timeout: 30 * time.Second})
}

func newTelegram(cfg config.Telegram, endpoint string, client tgbotapi.HTTPClient) (*Telegram, error) {
	if cfg.BotToken == "" || cfg.ChannelID == "" {
		return nil, fmt.Errorf("%w: token and channel are required", ErrInvalidCredentials)
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, client)
	if err != nil {
		if code := errorCode(err); code == http.StatusUnauthorized || code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, channel: cfg.ChannelID, parseMode: cfg.ParseMode}, nil
}

// Send posts text to the configured channel with link previews off.
func (t *Telegram) Send(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	msg := t.message(text)
	msg.ParseMode = t.parseMode
	msg.DisableWebPagePreview = true

	sent, err := t.api.Send(msg)
	if err != nil {
		if errorCode(err) == http.StatusUnauthorized {
			return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// message addresses a numeric chat id directly and anything else as a
// public channel username.
func (t *Telegram) message(text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(t.channel, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	channel := t.channel
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return tgbotapi.NewMessageToChannel(channel, text)
}

func errorCode(err error) int {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
