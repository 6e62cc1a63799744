package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"gympulse/config"
	"gympulse/models"
)

type whatsAppRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type whatsAppResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// WhatsAppChannel posts text messages to a WhatsApp HTTP gateway
// (POST {api_url}/message/sendText/{instance}).
type WhatsAppChannel struct {
	cfg    config.WhatsAppConfig
	client *resty.Client
}

func NewWhatsAppChannel(cfg config.WhatsAppConfig) *WhatsAppChannel {
	client := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("apikey", cfg.APIToken)

	return &WhatsAppChannel{cfg: cfg, client: client}
}

func (c *WhatsAppChannel) Name() string { return models.ChannelWhatsApp }

func (c *WhatsAppChannel) Configured() bool {
	return c.cfg.APIURL != "" && c.cfg.APIToken != "" && c.cfg.Instance != ""
}

// Send expects recipient already normalized to digits with country code. It
// makes a single attempt: a timed out POST may still have been delivered.
func (c *WhatsAppChannel) Send(ctx context.Context, recipient, _, body string) error {
	var result whatsAppResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(whatsAppRequest{Number: recipient, Text: body}).
		SetResult(&result).
		SetError(&result).
		Post("/message/sendText/" + c.cfg.Instance)
	if err != nil {
		return fmt.Errorf("failed to call WhatsApp API: %w", err)
	}
	if resp.IsError() {
		if result.Error != "" {
			return fmt.Errorf("WhatsApp API error: %s (status: %d)", result.Error, resp.StatusCode())
		}
		return fmt.Errorf("WhatsApp API error: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
