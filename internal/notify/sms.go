package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

const (
	defaultTelnyxBaseURL = "https://api.telnyx.com/v2"
	defaultTwilioBaseURL = "https://api.twilio.com"
	smsMaxAttempts       = 3
)

var smsTracer = otel.Tracer("calreminder.internal.notify.sms")

// retryPost runs build/send up to three times with 200-500ms jitter. 4xx
// answers other than 429 are returned without retrying.
func retryPost(ctx context.Context, client *http.Client, sleep func(time.Duration), build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= smsMaxAttempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return body, nil
			}
			lastErr = &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, lastErr
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < smsMaxAttempts {
			sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}
	return nil, lastErr
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("status %d", e.status)
	}
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

// smsBase holds what Telnyx and Twilio senders share: templates and the
// HTTP client.
type smsBase struct {
	from       string
	templates  TextTemplates
	baseURL    string
	httpClient *http.Client
	sleep      func(time.Duration)
	logger     *logging.Logger
}

func newSMSBase(from, baseURL string, logger *logging.Logger) smsBase {
	if logger == nil {
		logger = logging.Default()
	}
	return smsBase{
		from:       strings.TrimSpace(from),
		templates:  DefaultTextTemplates,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		sleep:      time.Sleep,
		logger:     logger,
	}
}

func (b *smsBase) Channel() string { return ChannelSMS }

// MarkRead has no SMS equivalent.
func (b *smsBase) MarkRead(context.Context, string) error { return nil }

func validateSMS(to, body string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("notify: to required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("notify: body required")
	}
	return nil
}

// TelnyxNotifier posts SMS messages using Telnyx's V2 API.
type TelnyxNotifier struct {
	smsBase
	apiKey             string
	messagingProfileID string
}

var _ Notifier = (*TelnyxNotifier)(nil)

func NewTelnyxNotifier(apiKey, messagingProfileID, from string, logger *logging.Logger) *TelnyxNotifier {
	return &TelnyxNotifier{
		smsBase:            newSMSBase(from, defaultTelnyxBaseURL, logger),
		apiKey:             strings.TrimSpace(apiKey),
		messagingProfileID: strings.TrimSpace(messagingProfileID),
	}
}

// SetBaseURL overrides the API base (useful for testing).
func (n *TelnyxNotifier) SetBaseURL(base string) { n.baseURL = strings.TrimRight(base, "/") }

func (n *TelnyxNotifier) IsConfigured() bool {
	return n != nil && n.apiKey != "" && n.from != ""
}

func (n *TelnyxNotifier) SendTemplate(ctx context.Context, to, template string, params []string) (string, error) {
	return n.SendText(ctx, to, n.templates.Render(template, params))
}

func (n *TelnyxNotifier) SendText(ctx context.Context, to, body string) (string, error) {
	if !n.IsConfigured() {
		return "", ErrNotConfigured
	}
	if err := validateSMS(to, body); err != nil {
		return "", err
	}

	ctx, span := smsTracer.Start(ctx, "notify.telnyx.send")
	defer span.End()
	span.SetAttributes(attribute.String("calreminder.to", to))

	payload, err := json.Marshal(struct {
		From               string `json:"from"`
		To                 string `json:"to"`
		Text               string `json:"text"`
		MessagingProfileID string `json:"messaging_profile_id,omitempty"`
	}{From: n.from, To: to, Text: body, MessagingProfileID: n.messagingProfileID})
	if err != nil {
		return "", fmt.Errorf("notify: marshal telnyx body: %w", err)
	}

	respBody, err := retryPost(ctx, n.httpClient, n.sleep, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/messages", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("notify: telnyx send: %w", err)
	}

	var parsed struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	_ = json.Unmarshal(respBody, &parsed)
	n.logger.Info("telnyx sms sent", "to", to, "message_id", parsed.Data.ID)
	return parsed.Data.ID, nil
}

// TwilioNotifier posts SMS messages using Twilio's REST API.
type TwilioNotifier struct {
	smsBase
	accountSID string
	authToken  string
}

var _ Notifier = (*TwilioNotifier)(nil)

func NewTwilioNotifier(accountSID, authToken, from string, logger *logging.Logger) *TwilioNotifier {
	return &TwilioNotifier{
		smsBase:    newSMSBase(from, defaultTwilioBaseURL, logger),
		accountSID: strings.TrimSpace(accountSID),
		authToken:  strings.TrimSpace(authToken),
	}
}

// SetBaseURL overrides the API base (useful for testing).
func (n *TwilioNotifier) SetBaseURL(base string) { n.baseURL = strings.TrimRight(base, "/") }

func (n *TwilioNotifier) IsConfigured() bool {
	return n != nil && n.accountSID != "" && n.authToken != "" && n.from != ""
}

func (n *TwilioNotifier) SendTemplate(ctx context.Context, to, template string, params []string) (string, error) {
	return n.SendText(ctx, to, n.templates.Render(template, params))
}

func (n *TwilioNotifier) SendText(ctx context.Context, to, body string) (string, error) {
	if !n.IsConfigured() {
		return "", ErrNotConfigured
	}
	if err := validateSMS(to, body); err != nil {
		return "", err
	}

	ctx, span := smsTracer.Start(ctx, "notify.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("calreminder.to", to))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", n.from)
	form.Set("Body", body)
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", n.baseURL, n.accountSID)

	respBody, err := retryPost(ctx, n.httpClient, n.sleep, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(n.accountSID, n.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("notify: twilio send: %w", err)
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(respBody, &parsed)
	n.logger.Info("twilio sms sent", "to", to, "message_id", parsed.SID, "status", parsed.Status)
	return parsed.SID, nil
}
