package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/wa-commerce-bridge/internal/config"
	"github.com/wolfman30/wa-commerce-bridge/internal/conversation"
	"github.com/wolfman30/wa-commerce-bridge/internal/observability/metrics"
	"github.com/wolfman30/wa-commerce-bridge/pkg/logging"
)

// LLM providers accepted in LLM_PROVIDER.
const (
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"
)

// AWSConfigLoader resolves AWS SDK configuration for the Bedrock provider.
type AWSConfigLoader func(ctx context.Context, cfg *appconfig.Config) (aws.Config, error)

// LLMClient is a completion client plus the model it should be asked for and
// a release hook for providers that hold connections.
type LLMClient struct {
	Client conversation.LLMClient
	Model  string
	Close  func() error
}

// BuildLLMClient returns the completion client selected by cfg.LLMProvider.
// loadAWS is only consulted for the bedrock provider.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) (*LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	noop := func() error { return nil }

	switch provider := strings.ToLower(strings.TrimSpace(cfg.LLMProvider)); provider {
	case "", ProviderOpenAI:
		model := strings.TrimSpace(cfg.OpenAIModel)
		client := conversation.NewOpenAILLMClient(conversation.NewOpenAIClient(cfg.GPTAPIKey, cfg.OpenAIBaseURL), model)
		logger.Info("using openai completion client", "model", model)
		return &LLMClient{Client: client, Model: model, Close: noop}, nil

	case ProviderGemini:
		model := strings.TrimSpace(cfg.GeminiModel)
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, model)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		logger.Info("using gemini completion client", "model", model)
		return &LLMClient{Client: client, Model: model, Close: client.Close}, nil

	case ProviderBedrock:
		model := strings.TrimSpace(cfg.BedrockModelID)
		if model == "" {
			return nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		if loadAWS == nil {
			return nil, fmt.Errorf("bootstrap: aws config loader is required for the bedrock provider")
		}
		awsCfg, err := loadAWS(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		bedrockClient := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
			if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		logger.Info("using bedrock completion client", "model", model, "region", cfg.AWSRegion)
		return &LLMClient{Client: conversation.NewBedrockLLMClient(bedrockClient, model), Model: model, Close: noop}, nil

	default:
		return nil, fmt.Errorf("bootstrap: unsupported LLM provider %q", provider)
	}
}

// BuildConversationStore returns the in-memory transcript store bounded by
// the configured turn cap and idle TTL.
func BuildConversationStore(cfg *appconfig.Config) *conversation.MemoryStore {
	if cfg == nil {
		return conversation.NewMemoryStore()
	}
	return conversation.NewMemoryStore(
		conversation.WithMaxTurns(cfg.ConversationMaxTurns),
		conversation.WithIdleTTL(cfg.ConversationIdleTTL),
	)
}

// BuildConversationService wires the reply service on top of store and llm.
func BuildConversationService(cfg *appconfig.Config, store conversation.Store, llm *LLMClient, m *metrics.BridgeMetrics, logger *logging.Logger) (*conversation.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if llm == nil || llm.Client == nil {
		return nil, fmt.Errorf("bootstrap: llm client is required")
	}
	return conversation.NewService(conversation.ServiceConfig{
		Store:        store,
		Client:       llm.Client,
		Model:        llm.Model,
		SystemPrompt: cfg.LLMSystemPrompt,
		Logger:       logger,
		Metrics:      m,
	}), nil
}
