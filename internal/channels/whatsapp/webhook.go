package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// SignatureHeader carries the HMAC of the raw body keyed by the app secret.
const SignatureHeader = "X-Hub-Signature-256"

// HandleVerification answers Meta's GET subscription challenge.
func HandleVerification(verifyToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := r.URL.Query().Get("hub.mode")
		token := r.URL.Query().Get("hub.verify_token")
		challenge := r.URL.Query().Get("hub.challenge")

		if mode == "subscribe" && verifyToken != "" && token == verifyToken {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, challenge)
			return
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// ParseMessages extracts actionable inbound messages. Text messages yield
// text.body; button taps yield button.text, falling back to the payload.
// Other types are returned with empty Text so callers can count them.
func ParseMessages(event WebhookEvent) []InboundMessage {
	var out []InboundMessage
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				msg := InboundMessage{From: m.From, MessageID: m.ID, Type: m.Type}
				switch m.Type {
				case "text":
					if m.Text != nil {
						msg.Text = m.Text.Body
					}
				case "button":
					if m.Button != nil {
						msg.Text = m.Button.Text
						if strings.TrimSpace(msg.Text) == "" {
							msg.Text = m.Button.Payload
						}
					}
				}
				out = append(out, msg)
			}
		}
	}
	return out
}

// ParseStatuses flattens delivery status updates.
func ParseStatuses(event WebhookEvent) []Status {
	var out []Status
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			out = append(out, change.Value.Statuses...)
		}
	}
	return out
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}

// Sign returns the header value Meta would send for body.
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
