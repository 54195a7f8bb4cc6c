package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shiftwatch/internal/domain/notify"
	"shiftwatch/internal/platform/config"
)

type noopMessenger struct{}

func (noopMessenger) Send(ctx context.Context, handle, text string) error {
	return nil
}

// botMessenger delivers through a bot-style HTTP API:
// POST {base}/bot{token}/sendMessage with {"chat_id","text"}.
type botMessenger struct {
	baseURL string
	token   string
	client  *http.Client
}

func New(cfg config.Config) notify.Messenger {
	if !cfg.MessagingEnabled || cfg.MessagingBaseURL == "" {
		return noopMessenger{}
	}
	return NewBot(cfg.MessagingBaseURL, cfg.MessagingToken, &http.Client{Timeout: 10 * time.Second})
}

func NewBot(baseURL, token string, client *http.Client) notify.Messenger {
	if client == nil {
		client = http.DefaultClient
	}
	return &botMessenger{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

type sendRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (b *botMessenger) Send(ctx context.Context, handle, text string) error {
	if strings.TrimSpace(handle) == "" {
		return notify.ErrNoHandle
	}
	body, err := json.Marshal(sendRequest{ChatID: handle, Text: text})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", b.baseURL, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var decoded sendResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("send message: status %d", resp.StatusCode)
		}
		return fmt.Errorf("send message: decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !decoded.OK {
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, decoded.Description)
	}
	return nil
}
