package handlers

import (
	"io"
	"net/http"

	"github.com/aatwiz/calendar-reminder/internal/channels/whatsapp"
	"github.com/aatwiz/calendar-reminder/internal/reply"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

// WhatsAppWebhookHandler receives Cloud API callbacks.
type WhatsAppWebhookHandler struct {
	dispatcher  *reply.Dispatcher
	verifyToken string
	appSecret   string
	logger      *logging.Logger
}

func NewWhatsAppWebhookHandler(dispatcher *reply.Dispatcher, verifyToken, appSecret string, logger *logging.Logger) *WhatsAppWebhookHandler {
	if dispatcher == nil {
		panic("handlers: whatsapp webhook requires a dispatcher")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppWebhookHandler{
		dispatcher:  dispatcher,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		logger:      logger,
	}
}

// Verify handles the GET subscription handshake.
func (h *WhatsAppWebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	whatsapp.HandleVerification(h.verifyToken)(w, r)
}

// Receive handles POST deliveries. Only a bad signature is refused; bodies
// that cannot be read or decoded are logged and acknowledged with 200 so the
// provider does not redeliver them.
func (h *WhatsAppWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("discarding unreadable whatsapp webhook", "error", err, "content_length", r.ContentLength)
		writeJSON(w, http.StatusOK, map[string]any{"received": 0})
		return
	}
	if h.appSecret != "" && !whatsapp.VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("invalid whatsapp webhook signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	results, err := h.dispatcher.Dispatch(r.Context(), body)
	if err != nil {
		h.logger.Warn("discarding malformed whatsapp webhook", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"received": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": len(results), "results": results})
}
