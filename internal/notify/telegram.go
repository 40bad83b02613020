package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TelegramClient sends bot messages to a chat.
type TelegramClient interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// TelegramNotifier sends HTML-formatted forecast messages to the location's chat handle.
type TelegramNotifier struct {
	client TelegramClient
	tz     *time.Location
}

func NewTelegramNotifier(client TelegramClient, tz *time.Location) *TelegramNotifier {
	if tz == nil {
		tz = time.UTC
	}
	return &TelegramNotifier{client: client, tz: tz}
}

func (t *TelegramNotifier) Channel() string { return ChannelTelegram }

// Notify is skipped when the location has no chat handle.
func (t *TelegramNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.Location.TelegramChatID == "" {
		return fmt.Errorf("%w: no chat handle for location %d", ErrSkipped, msg.Location.ID)
	}
	if err := t.client.SendMessage(ctx, msg.Location.TelegramChatID, RenderTelegram(msg, t.tz)); err != nil {
		return fmt.Errorf("%w: telegram: %w", ErrChannel, err)
	}
	return nil
}

// BotClient calls the Telegram Bot API sendMessage method.
type BotClient struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewBotClient creates a BotClient. baseURL defaults to https://api.telegram.org.
func NewBotClient(token, baseURL string, timeout time.Duration) (*BotClient, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BotClient{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// SendMessage posts text with HTML parse mode.
func (b *BotClient) SendMessage(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("encode sendMessage: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", b.baseURL, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		// the URL embeds the token; report only the method
		return fmt.Errorf("sendMessage request failed: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read sendMessage response: %w", err)
	}
	var out botResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("sendMessage: HTTP %d: parse response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		return fmt.Errorf("sendMessage: HTTP %d: %s", resp.StatusCode, out.Description)
	}
	return nil
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
