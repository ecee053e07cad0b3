package notify

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

// WhatsAppConfig holds the Cloud API settings.
type WhatsAppConfig struct {
	APIURL        string
	AccessToken   string
	PhoneNumberID string
	Recipient     string
	Timeout       time.Duration
}

// WhatsAppChannel posts text messages through the WhatsApp Cloud API.
type WhatsAppChannel struct {
	cfg    WhatsAppConfig
	client *http.Client
}

// NewWhatsAppChannel constructs a WhatsAppChannel. A nil client uses a default with cfg.Timeout.
func NewWhatsAppChannel(cfg WhatsAppConfig, client *http.Client) *WhatsAppChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &WhatsAppChannel{cfg: cfg, client: client}
}

// Name implements Channel.
func (c *WhatsAppChannel) Name() string { return "whatsapp" }

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

// Send implements Channel.
func (c *WhatsAppChannel) Send(ctx context.Context, text string) error {
	if c.cfg.APIURL == "" || c.cfg.AccessToken == "" || c.cfg.PhoneNumberID == "" || c.cfg.Recipient == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               c.cfg.Recipient,
		Type:             "text",
		Text:             whatsAppText{Body: text},
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.APIURL, "/") + "/" + c.cfg.PhoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("whatsapp api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
