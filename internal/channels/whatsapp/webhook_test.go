package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wolfman30/wa-commerce-bridge/internal/observability/metrics"
)

const sneakersPayload = `{"object":"whatsapp_business_account","entry":[{"id":"waba","changes":[{"field":"messages","value":{"messaging_product":"whatsapp","metadata":{"display_phone_number":"15550000000","phone_number_id":"PHONE"},"messages":[{"from":"111","id":"wamid.1","timestamp":"1700000000","type":"text","text":{"body":"  Sneakers "}}]}}]}]}`

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	validSig := sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, "sha256=0000000000000000000000000000000000000000000000000000000000000000", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, "abcdef", false},
		{"prefix only", secret, body, "sha256=", false},
		{"tampered body", secret, []byte(`tampered`), validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.body, tt.signature); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleVerification(t *testing.T) {
	h := NewWebhookHandler("my_verify_token", "", nil, nil, nil)

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantBody string
	}{
		{"valid challenge", "hub.mode=subscribe&hub.verify_token=my_verify_token&hub.challenge=CHALLENGE_123", http.StatusOK, "CHALLENGE_123"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=X", http.StatusForbidden, "Verification token mismatch\n"},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=my_verify_token&hub.challenge=X", http.StatusForbidden, "Verification token mismatch\n"},
		{"missing params", "", http.StatusForbidden, "Verification token mismatch\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil)
			w := httptest.NewRecorder()
			h.HandleVerification(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if w.Body.String() != tt.wantBody {
				t.Fatalf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandleVerification_EmptyConfiguredTokenRejects(t *testing.T) {
	h := NewWebhookHandler("", "", nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=X", nil)
	w := httptest.NewRecorder()
	h.HandleVerification(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

type recorder struct {
	msgs []InboundMessage
}

func (r *recorder) handle(_ context.Context, msg InboundMessage) {
	r.msgs = append(r.msgs, msg)
}

func postWebhook(h *WebhookHandler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)
	return w
}

func TestHandleInbound(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg bool
		outcome string
	}{
		{"text message", sneakersPayload, true, "processed"},
		{"invalid json", `{not json`, false, "malformed"},
		{"missing entry", `{"object":"whatsapp_business_account"}`, false, "malformed"},
		{"missing changes", `{"entry":[{"id":"waba"}]}`, false, "malformed"},
		{"missing value", `{"entry":[{"changes":[{"field":"messages"}]}]}`, false, "malformed"},
		{"status receipt", `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.9","status":"read"}]}}]}]}`, false, "no_message"},
		{"image without text", `{"entry":[{"changes":[{"value":{"messages":[{"from":"111","id":"wamid.2","type":"image"}]}}]}]}`, false, "no_text"},
		{"whitespace text", `{"entry":[{"changes":[{"value":{"messages":[{"from":"111","id":"wamid.3","type":"text","text":{"body":"   "}}]}}]}]}`, false, "no_text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewBridgeMetrics(prometheus.NewRegistry())
			rec := &recorder{}
			h := NewWebhookHandler("tok", "", rec.handle, nil, m)

			w := postWebhook(h, tt.body, nil)
			if w.Code != http.StatusOK || w.Body.String() != "OK" {
				t.Fatalf("expected 200 OK, got %d %q", w.Code, w.Body.String())
			}
			if got := len(rec.msgs) == 1; got != tt.wantMsg {
				t.Fatalf("message delivered = %v, want %v (%d msgs)", got, tt.wantMsg, len(rec.msgs))
			}
			if got := testutil.ToFloat64(m.InboundCounter(tt.outcome)); got != 1 {
				t.Fatalf("inbound[%s] = %v, want 1", tt.outcome, got)
			}
		})
	}
}

func TestHandleInbound_NormalizesMessage(t *testing.T) {
	rec := &recorder{}
	h := NewWebhookHandler("tok", "", rec.handle, nil, nil)
	postWebhook(h, sneakersPayload, nil)

	if len(rec.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(rec.msgs))
	}
	msg := rec.msgs[0]
	if msg.From != "111" || msg.ID != "wamid.1" || msg.Text != "sneakers" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.PhoneNumberID != "PHONE" {
		t.Errorf("phone_number_id = %q, want PHONE", msg.PhoneNumberID)
	}
	if msg.Timestamp.Unix() != 1700000000 {
		t.Errorf("timestamp = %v", msg.Timestamp)
	}
}

func TestHandleInbound_Signature(t *testing.T) {
	const secret = "app_secret"

	t.Run("valid signature is processed", func(t *testing.T) {
		rec := &recorder{}
		h := NewWebhookHandler("tok", secret, rec.handle, nil, nil)
		w := postWebhook(h, sneakersPayload, map[string]string{
			"X-Hub-Signature-256": sign(secret, []byte(sneakersPayload)),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if len(rec.msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(rec.msgs))
		}
	})

	t.Run("invalid signature is acknowledged but dropped", func(t *testing.T) {
		m := metrics.NewBridgeMetrics(prometheus.NewRegistry())
		rec := &recorder{}
		h := NewWebhookHandler("tok", secret, rec.handle, nil, m)
		w := postWebhook(h, sneakersPayload, map[string]string{
			"X-Hub-Signature-256": sign("other", []byte(sneakersPayload)),
		})
		if w.Code != http.StatusOK || w.Body.String() != "OK" {
			t.Fatalf("expected 200 OK, got %d %q", w.Code, w.Body.String())
		}
		if len(rec.msgs) != 0 {
			t.Fatalf("expected no messages, got %d", len(rec.msgs))
		}
		if got := testutil.ToFloat64(m.InboundCounter("bad_signature")); got != 1 {
			t.Fatalf("bad_signature = %v, want 1", got)
		}
	})
}

func TestExtractMessage_Errors(t *testing.T) {
	_, err := ExtractMessage(WebhookPayload{})
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}

	_, err = ExtractMessage(WebhookPayload{Entry: []Entry{{Changes: []Change{{Value: &ChangeValue{}}}}}})
	if !errors.Is(err, ErrNoMessage) {
		t.Fatalf("expected ErrNoMessage, got %v", err)
	}

	_, err = ExtractMessage(WebhookPayload{Entry: []Entry{{Changes: []Change{{Value: &ChangeValue{
		Messages: []Message{{ID: "wamid.4", Type: "text", Text: &TextContent{Body: "hi"}}},
	}}}}}})
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for missing sender, got %v", err)
	}
}
