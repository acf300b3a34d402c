package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/wa-commerce-bridge/internal/observability/metrics"
	"github.com/wolfman30/wa-commerce-bridge/pkg/logging"
)

const maxWebhookBody = 1 << 20

var (
	// ErrMalformedPayload means entry[0].changes[0].value is missing.
	ErrMalformedPayload = errors.New("whatsapp: malformed webhook payload")
	// ErrNoMessage means the payload carried no messages (e.g. a status receipt).
	ErrNoMessage = errors.New("whatsapp: no message in webhook payload")
)

// MessageHandler processes one extracted inbound message to completion.
type MessageHandler func(ctx context.Context, msg InboundMessage)

// WebhookHandler handles WhatsApp webhook verification and inbound messages.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	onMessage   MessageHandler
	logger      *logging.Logger
	metrics     *metrics.BridgeMetrics
}

// NewWebhookHandler creates a new webhook handler. An empty appSecret skips
// signature checks.
func NewWebhookHandler(verifyToken, appSecret string, onMessage MessageHandler, logger *logging.Logger, m *metrics.BridgeMetrics) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		onMessage:   onMessage,
		logger:      logger,
		metrics:     m,
	}
}

// HandleVerification handles the GET subscription handshake from Meta.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(http.MethodGet, time.Since(start).Seconds()) }()

	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && hmac.Equal([]byte(token), []byte(h.verifyToken)) {
		h.logger.Info("whatsapp: webhook verified")
		h.metrics.ObserveInbound("verified")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	h.logger.Warn("whatsapp: webhook verification rejected", "mode", mode)
	h.metrics.ObserveInbound("rejected")
	http.Error(w, "Verification token mismatch", http.StatusForbidden)
}

// HandleInbound handles POST webhook events. It always answers 200 "OK" once
// the body has been read: acknowledgement is decoupled from processing.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(http.MethodPost, time.Since(start).Seconds()) }()
	defer writeOK(w)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("whatsapp: failed to read webhook body", "error", err)
		h.metrics.ObserveInbound("unreadable")
		return
	}

	if h.appSecret != "" && !VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("whatsapp: invalid webhook signature; dropping payload")
		h.metrics.ObserveInbound("bad_signature")
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("whatsapp: failed to decode webhook payload", "error", err)
		h.metrics.ObserveInbound("malformed")
		return
	}

	msg, err := ExtractMessage(payload)
	switch {
	case errors.Is(err, ErrNoMessage):
		h.logger.Debug("whatsapp: webhook carried no message")
		h.metrics.ObserveInbound("no_message")
		return
	case err != nil:
		h.logger.Error("whatsapp: error processing incoming message", "error", err)
		h.metrics.ObserveInbound("malformed")
		return
	}

	if msg.Text == "" {
		h.logger.Info("whatsapp: ignoring message without text", "message_id", msg.ID, "type", msg.Type)
		h.metrics.ObserveInbound("no_text")
		return
	}

	h.logger.Info("whatsapp: received message",
		"from", msg.From,
		"message_id", msg.ID,
		"text_length", len(msg.Text),
	)
	h.metrics.ObserveInbound("processed")
	if h.onMessage != nil {
		h.onMessage(r.Context(), msg)
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

// ExtractMessage returns entry[0].changes[0].value.messages[0] with its text
// trimmed and lower-cased.
func ExtractMessage(payload WebhookPayload) (InboundMessage, error) {
	if len(payload.Entry) == 0 {
		return InboundMessage{}, fmt.Errorf("%w: no entry", ErrMalformedPayload)
	}
	if len(payload.Entry[0].Changes) == 0 {
		return InboundMessage{}, fmt.Errorf("%w: no changes", ErrMalformedPayload)
	}
	value := payload.Entry[0].Changes[0].Value
	if value == nil {
		return InboundMessage{}, fmt.Errorf("%w: no value", ErrMalformedPayload)
	}
	if len(value.Messages) == 0 {
		return InboundMessage{}, ErrNoMessage
	}

	m := value.Messages[0]
	msg := InboundMessage{
		ID:            m.ID,
		From:          m.From,
		Type:          m.Type,
		PhoneNumberID: value.Metadata.PhoneNumberID,
	}
	if m.Text != nil {
		msg.Text = strings.ToLower(strings.TrimSpace(m.Text.Body))
	}
	if secs, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
		msg.Timestamp = time.Unix(secs, 0).UTC()
	}
	if msg.From == "" {
		return InboundMessage{}, fmt.Errorf("%w: message has no sender", ErrMalformedPayload)
	}
	return msg, nil
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

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature[len(prefix):]))
}
