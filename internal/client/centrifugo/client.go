package centrifugo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/model"
)

const (
	publishMethod = "publish"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Error *apiError `json:"error"`
}

func New(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Centrifuge.BaseURL, "/"),
		apiKey:  cfg.Centrifuge.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Centrifuge.Timeout,
		},
	}
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// PublishMessage pushes a persisted message to the channel of its ticket.
func (c *Client) PublishMessage(ctx context.Context, msg model.Message) error {
	return c.Publish(ctx, model.TicketChannel(msg.TicketID.String()), model.RealtimeEvent{
		Type:    model.RealtimeMessageCreated,
		Message: &msg,
	})
}

// PublishMessageDeleted tells subscribers a message is gone, used for
// streaming placeholders.
func (c *Client) PublishMessageDeleted(ctx context.Context, ticketID, messageID string) error {
	return c.Publish(ctx, model.TicketChannel(ticketID), model.RealtimeEvent{
		Type:      model.RealtimeMessageDeleted,
		MessageID: messageID,
	})
}

// Publish sends data to every subscriber of channel. A client without a base
// URL is disabled and publishes nothing.
func (c *Client) Publish(ctx context.Context, channel string, data interface{}) error {
	if c.baseURL == "" {
		return nil
	}

	payload := model.CentrifugoEvent{
		Method: publishMethod,
		Params: model.CentrifugoEventParams{
			Channel: channel,
			Data:    data,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create publish request: %w", err)
	}

	req.Header.Set("Authorization", "apikey "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	defer resp.Body.Close() //nolint:errcheck // .

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var response apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode publish response: %w", err)
	}

	if response.Error != nil {
		return fmt.Errorf("centrifugo error %d: %s", response.Error.Code, response.Error.Message)
	}

	return nil
}
