package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/wolfman30/wa-commerce-bridge/internal/catalog"
	appconfig "github.com/wolfman30/wa-commerce-bridge/internal/config"
	"github.com/wolfman30/wa-commerce-bridge/internal/conversation"
	"github.com/wolfman30/wa-commerce-bridge/pkg/logging"
)

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true); client != nil {
		t.Fatalf("expected nil client when REDIS_ADDR is empty")
	}
}

func TestBuildRedisClientVerifiesConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := logging.New("error")

	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	if client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logger, true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildCatalogFinder(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{WooCommerceURL: "https://shop.example.com", CatalogPageSize: 5}

	finder, err := BuildCatalogFinder(cfg, nil, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := finder.(*catalog.Client); !ok {
		t.Fatalf("expected *catalog.Client without redis, got %T", finder)
	}

	mr := miniredis.RunT(t)
	redisClient := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, false)
	defer redisClient.Close()

	finder, err = BuildCatalogFinder(cfg, redisClient, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := finder.(*catalog.CachedFinder); !ok {
		t.Fatalf("expected *catalog.CachedFinder with redis, got %T", finder)
	}

	if _, err := BuildCatalogFinder(&appconfig.Config{}, nil, logger); err == nil {
		t.Fatalf("expected error without WOOCOMMERCE_URL")
	}
}

func TestBuildDeduper(t *testing.T) {
	if d := BuildDeduper(&appconfig.Config{}, nil); d != nil {
		t.Fatalf("expected nil deduper without redis")
	}

	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr(), DedupTTL: time.Hour}
	redisClient := BuildRedisClient(context.Background(), cfg, nil, false)
	defer redisClient.Close()

	d := BuildDeduper(cfg, redisClient)
	if d == nil {
		t.Fatalf("expected deduper with redis")
	}
	first, err := d.MarkProcessed(context.Background(), "wamid.1")
	if err != nil || !first {
		t.Fatalf("MarkProcessed = %v, %v", first, err)
	}
}

func TestBuildLLMClientRequiresConfig(t *testing.T) {
	if _, err := BuildLLMClient(context.Background(), nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildLLMClientOpenAIDefault(t *testing.T) {
	cfg := &appconfig.Config{GPTAPIKey: "sk-test", OpenAIModel: "gpt-3.5-turbo"}

	llm, err := BuildLLMClient(context.Background(), cfg, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := llm.Client.(*conversation.OpenAILLMClient); !ok {
		t.Fatalf("expected OpenAI client, got %T", llm.Client)
	}
	if llm.Model != "gpt-3.5-turbo" {
		t.Fatalf("model = %q", llm.Model)
	}
	if err := llm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestBuildLLMClientGeminiRequiresKey(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: ProviderGemini}
	if _, err := BuildLLMClient(context.Background(), cfg, nil, logging.New("error")); err == nil {
		t.Fatalf("expected error without GEMINI_API_KEY")
	}
}

func TestBuildLLMClientBedrock(t *testing.T) {
	logger := logging.New("error")

	if _, err := BuildLLMClient(context.Background(), &appconfig.Config{LLMProvider: ProviderBedrock}, nil, logger); err == nil {
		t.Fatalf("expected error without BEDROCK_MODEL_ID")
	}

	cfg := &appconfig.Config{
		LLMProvider:         ProviderBedrock,
		BedrockModelID:      "anthropic.claude-3-haiku-20240307-v1:0",
		AWSRegion:           "us-east-1",
		AWSEndpointOverride: "http://localhost:4566",
	}
	failing := func(context.Context, *appconfig.Config) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	}
	if _, err := BuildLLMClient(context.Background(), cfg, failing, logger); err == nil {
		t.Fatalf("expected loader error to surface")
	}

	loader := func(_ context.Context, c *appconfig.Config) (aws.Config, error) {
		return aws.Config{Region: c.AWSRegion}, nil
	}
	llm, err := BuildLLMClient(context.Background(), cfg, loader, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := llm.Client.(*conversation.BedrockLLMClient); !ok {
		t.Fatalf("expected Bedrock client, got %T", llm.Client)
	}
}

func TestBuildLLMClientUnsupportedProvider(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "llama"}
	if _, err := BuildLLMClient(context.Background(), cfg, nil, logging.New("error")); err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}

type echoLLM struct{}

func (echoLLM) Complete(_ context.Context, req conversation.LLMRequest) (conversation.LLMResponse, error) {
	return conversation.LLMResponse{Text: "echo: " + req.Messages[len(req.Messages)-1].Content}, nil
}

func TestBuildConversationService(t *testing.T) {
	cfg := &appconfig.Config{ConversationMaxTurns: 4, ConversationIdleTTL: time.Hour}
	store := BuildConversationStore(cfg)

	if _, err := BuildConversationService(cfg, store, nil, nil, nil); err == nil {
		t.Fatalf("expected error without llm client")
	}

	svc, err := BuildConversationService(cfg, store, &LLMClient{Client: echoLLM{}, Model: "m"}, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if got := svc.GenerateReply(context.Background(), "111", "hi"); got != "echo: hi" {
			t.Fatalf("reply = %q", got)
		}
	}
	if got := len(store.GetOrCreate(context.Background(), "111")); got != 4 {
		t.Fatalf("transcript length = %d, want capped at 4", got)
	}
}

func TestBuildConversationStoreDefaultsKeepEveryTurn(t *testing.T) {
	t.Setenv("CONVERSATION_MAX_TURNS", "")
	t.Setenv("CONVERSATION_IDLE_TTL", "")
	cfg := appconfig.Load()
	store := BuildConversationStore(cfg)

	svc, err := BuildConversationService(cfg, store, &LLMClient{Client: echoLLM{}, Model: "m"}, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const exchanges = 25
	for i := 0; i < exchanges; i++ {
		svc.GenerateReply(context.Background(), "S", "hi")
	}
	if got := len(store.GetOrCreate(context.Background(), "S")); got != 2*exchanges {
		t.Fatalf("transcript length = %d, want %d", got, 2*exchanges)
	}
	if removed := store.Sweep(); removed != 0 {
		t.Fatalf("sweep removed %d senders with no idle ttl configured", removed)
	}
}
