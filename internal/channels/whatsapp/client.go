// Package whatsapp is a thin client for the WhatsApp Business Cloud API plus
// the webhook payload model.
package whatsapp

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v21.0"
	defaultHTTPTimeout  = 10 * time.Second
	defaultLanguage     = "en"
)

// ErrNotConfigured is returned when the phone number id or token is missing.
var ErrNotConfigured = errors.New("whatsapp: not configured")

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp: API error %d (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Client sends messages through the WhatsApp Business Cloud API.
type Client struct {
	phoneNumberID string
	accessToken   string
	language      string
	graphAPIBase  string
	httpClient    *http.Client
	tracer        trace.Tracer
}

// NewClient creates a new Cloud API client.
func NewClient(phoneNumberID, accessToken string) *Client {
	return &Client{
		phoneNumberID: strings.TrimSpace(phoneNumberID),
		accessToken:   strings.TrimSpace(accessToken),
		language:      defaultLanguage,
		graphAPIBase:  defaultGraphAPIBase,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
		tracer:        otel.Tracer("calreminder.internal.channels.whatsapp"),
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = strings.TrimRight(base, "/")
}

// SetLanguage sets the template language code ("en", "en_GB").
func (c *Client) SetLanguage(code string) {
	if code = strings.TrimSpace(code); code != "" {
		c.language = code
	}
}

// IsConfigured reports whether credentials are present.
func (c *Client) IsConfigured() bool {
	return c != nil && c.phoneNumberID != "" && c.accessToken != ""
}

// SendTemplate sends a business-initiated template message with positional
// body parameters.
func (c *Client) SendTemplate(ctx context.Context, to, name string, params []string) (*SendResponse, error) {
	tmpl := &TemplateMessage{
		Name:     name,
		Language: TemplateLanguage{Code: c.language},
	}
	if len(params) > 0 {
		component := TemplateComponent{Type: "body"}
		for _, p := range params {
			component.Parameters = append(component.Parameters, TemplateParameter{Type: "text", Text: p})
		}
		tmpl.Components = []TemplateComponent{component}
	}
	return c.send(ctx, "whatsapp.send_template", sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         tmpl,
	})
}

// SendText sends a free-form text message. Only valid inside the 24h
// customer service window opened by the patient's message.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResponse, error) {
	return c.send(ctx, "whatsapp.send_text", sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &sendText{Body: body},
	})
}

// MarkRead marks an inbound message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	_, err := c.send(ctx, "whatsapp.mark_read", sendRequest{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	})
	return err
}

func (c *Client) send(ctx context.Context, spanName string, req sendRequest) (*SendResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	ctx, span := c.tracer.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("whatsapp.type", req.Type))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}

	var sendResp SendResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &sendResp); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("whatsapp: unmarshal response: %w", err)
		}
	}

	if sendResp.Error != nil || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		if sendResp.Error != nil {
			apiErr.Code = sendResp.Error.Code
			apiErr.Message = sendResp.Error.Message
		}
		span.RecordError(apiErr)
		return &sendResp, apiErr
	}
	return &sendResp, nil
}
