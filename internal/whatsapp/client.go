package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the WhatsApp HTTP gateway that owns the phone session.
type Client struct {
	BaseURL    string
	APIKey     string
	Session    string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey, session string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		Session:    session,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type sendTextRequest struct {
	Session string `json:"session"`
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
}

// The gateway returns the id either as a string or as {"_serialized": "..."}.
type sendTextResponse struct {
	ID json.RawMessage `json:"id"`
}

// SendText posts a text message and returns the provider's message id.
func (c *Client) SendText(ctx context.Context, chatID, text string) (string, error) {
	body, err := json.Marshal(sendTextRequest{Session: c.Session, ChatID: chatID, Text: text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/sendText", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("whatsapp send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out sendTextResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("whatsapp send: decode response: %w", err)
	}
	id := parseMessageID(out.ID)
	if id == "" {
		return "", fmt.Errorf("whatsapp send: response carries no message id")
	}
	return id, nil
}

func parseMessageID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Serialized string `json:"_serialized"`
		ID         string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Serialized != "" {
			return obj.Serialized
		}
		return obj.ID
	}
	return ""
}
