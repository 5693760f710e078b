package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"lasersell-stream/internal/config"

	"go.uber.org/zap"
)

const (
	telegramAPI = "https://api.telegram.org"
	// sendMessage rejects text longer than this many characters.
	telegramMaxChars = 4096
)

var ErrTelegramNotConfigured = errors.New("telegram token and chat_id are required")

// TelegramError is a sendMessage call the Bot API refused.
type TelegramError struct {
	Status      int
	Description string
}

func (e *TelegramError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("telegram sendMessage: http %d: %s", e.Status, e.Description)
	}
	return "telegram sendMessage: " + e.Description
}

// Telegram posts alert text to one chat through the Bot API.
type Telegram struct {
	cfg      config.TelegramConfig
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

type TelegramOption func(*Telegram)

// WithTelegramAPI points the sender at another Bot API host.
func WithTelegramAPI(baseURL string, client *http.Client) TelegramOption {
	return func(t *Telegram) {
		t.endpoint = strings.TrimRight(baseURL, "/")
		if client != nil {
			t.client = client
		}
	}
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger, opts ...TelegramOption) *Telegram {
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)
	t := &Telegram{
		cfg:      cfg,
		endpoint: telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = zap.NewNop()
	}
	return t
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers message to the configured chat. A disabled sender drops it.
func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.cfg.Enabled {
		return nil
	}
	if t.cfg.Token == "" || t.cfg.ChatID == "" {
		return ErrTelegramNotConfigured
	}
	text := truncateChars(strings.TrimSpace(message), telegramMaxChars)
	if text == "" {
		return errors.New("telegram message is empty")
	}
	err := t.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:                t.cfg.ChatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err == nil {
		t.log.Debug("telegram alert sent", zap.Int("chars", utf8.RuneCountInString(text)))
	}
	return err
}

func (t *Telegram) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/%s", t.endpoint, t.cfg.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var result botResponse
	decodeErr := json.Unmarshal(raw, &result)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		desc := strings.TrimSpace(result.Description)
		if decodeErr != nil || desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return &TelegramError{Status: resp.StatusCode, Description: desc}
	}
	if decodeErr == nil && !result.OK {
		desc := strings.TrimSpace(result.Description)
		if desc == "" {
			desc = "unknown error"
		}
		return &TelegramError{Description: desc}
	}
	return nil
}

// truncateChars keeps at most limit characters of s without splitting a rune.
func truncateChars(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
