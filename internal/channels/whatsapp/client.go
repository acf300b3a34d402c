package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/wolfman30/wa-commerce-bridge/internal/upstream"
)

const (
	serviceName         = "whatsapp"
	defaultGraphAPIBase = "https://graph.facebook.com/v17.0"
	defaultHTTPTimeout  = 10 * time.Second
	messagingProduct    = "whatsapp"
)

var tracer = otel.Tracer("wabridge.internal.channels.whatsapp")

// Client sends messages via the WhatsApp Cloud API.
type Client struct {
	accessToken   string
	phoneNumberID string
	graphAPIBase  string
	httpClient    *http.Client
}

// NewClient creates a Cloud API client sending from phoneNumberID.
func NewClient(accessToken, phoneNumberID string) *Client {
	return &Client{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		graphAPIBase:  defaultGraphAPIBase,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
		c.graphAPIBase = base
	}
}

// SendText sends a plain text message to the given recipient.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResponse, error) {
	ctx, span := tracer.Start(ctx, "whatsapp.send_text")
	defer span.End()

	if strings.TrimSpace(to) == "" {
		return nil, errors.New("whatsapp: recipient is required")
	}

	payload, err := json.Marshal(SendRequest{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             SendText{Body: body},
	})
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, upstream.Transport(serviceName, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, upstream.Transport(serviceName, err)
	}
	defer func() { _ = res.Body.Close() }()

	if err := upstream.CheckResponse(serviceName, res); err != nil {
		span.RecordError(err)
		return nil, err
	}
	raw, err := upstream.ReadBody(serviceName, res)
	if err != nil {
		return nil, err
	}

	var sendResp SendResponse
	if err := json.Unmarshal(raw, &sendResp); err != nil {
		return nil, upstream.Decode(serviceName, err)
	}
	if sendResp.Error != nil {
		ue := upstream.Status(serviceName, res.StatusCode, sendResp.Error.Message)
		span.RecordError(ue)
		return &sendResp, ue
	}
	return &sendResp, nil
}
