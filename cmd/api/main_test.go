package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/wolfman30/wa-commerce-bridge/internal/config"
	"github.com/wolfman30/wa-commerce-bridge/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, m := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveInbound("processed")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "bridge_whatsapp_inbound_webhook_total") {
		t.Fatalf("expected inbound counter to be exported")
	}
}

func TestBuildAppRejectsUnsupportedProvider(t *testing.T) {
	handler, m := setupMetrics()
	cfg := &appconfig.Config{LLMProvider: "nope", WooCommerceURL: "https://shop.example.com"}

	if _, err := buildApp(context.Background(), cfg, m, handler, logging.New("error")); err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}

// fakeUpstreams serves the WooCommerce, OpenAI and Graph endpoints the bridge
// calls during one exchange.
type fakeUpstreams struct {
	mu   sync.Mutex
	sent []map[string]any
}

func (f *fakeUpstreams) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/wp-json/wc/v3/products":
		if r.URL.Query().Get("search") == "sneakers" {
			_, _ = io.WriteString(w, `[{"id":1,"name":"Red Runner"},{"id":2,"name":"Blue Dash"}]`)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	case r.URL.Path == "/v1/chat/completions":
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"gpt-3.5-turbo","choices":[{"index":0,"message":{"role":"assistant","content":"Great picks!"},"finish_reason":"stop"}]}`)
	case strings.HasSuffix(r.URL.Path, "/messages"):
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.sent = append(f.sent, body)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.out"}]}`)
	default:
		http.NotFound(w, r)
	}
}

func TestBuildAppServesWebhookEndToEnd(t *testing.T) {
	fake := &fakeUpstreams{}
	upstreams := httptest.NewServer(fake)
	defer upstreams.Close()
	mr := miniredis.RunT(t)

	cfg := &appconfig.Config{
		VerifyToken:       "verify-me",
		WhatsAppToken:     "wa-token",
		WhatsAppPhoneID:   "PHONE",
		WhatsAppGraphBase: upstreams.URL,
		WooCommerceURL:    upstreams.URL,
		CatalogPageSize:   5,
		LLMProvider:       "openai",
		GPTAPIKey:         "sk-test",
		OpenAIModel:       "gpt-3.5-turbo",
		OpenAIBaseURL:     upstreams.URL + "/v1",
		RedisAddr:         mr.Addr(),
	}
	handler, m := setupMetrics()
	app, err := buildApp(context.Background(), cfg, m, handler, logging.New("error"))
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer app.close(logging.New("error"))

	body := `{"entry":[{"changes":[{"value":{"messages":[{"from":"111","id":"wamid.in","type":"text","text":{"body":"Sneakers"}}]}}]}]}`
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		app.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
		if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
			t.Fatalf("expected 200 OK, got %d %q", rr.Code, rr.Body.String())
		}
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.sent) != 1 {
		t.Fatalf("expected exactly one delivery (redelivery deduped), got %d", len(fake.sent))
	}
	text, _ := fake.sent[0]["text"].(map[string]any)
	want := "Here are some products matching 'sneakers':\nRed Runner\nBlue Dash\n\nGreat picks!"
	if text["body"] != want {
		t.Fatalf("delivered body = %q, want %q", text["body"], want)
	}
	if fake.sent[0]["to"] != "111" {
		t.Fatalf("delivered to = %v", fake.sent[0]["to"])
	}
	if app.store.Len() != 1 {
		t.Fatalf("expected one active conversation, got %d", app.store.Len())
	}
}
