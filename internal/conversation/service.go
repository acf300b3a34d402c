package conversation

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/wa-commerce-bridge/internal/observability/metrics"
	"github.com/wolfman30/wa-commerce-bridge/internal/upstream"
	"github.com/wolfman30/wa-commerce-bridge/pkg/logging"
)

// FallbackReply is returned when the completion service fails.
const FallbackReply = "Sorry, I couldn't generate a response."

const (
	defaultMaxTokens   int32   = 150
	defaultTemperature float32 = 0.7
)

var serviceTracer = otel.Tracer("wabridge.internal.conversation")

// ServiceConfig wires a Service. Store and Client are required.
type ServiceConfig struct {
	Store        Store
	Client       LLMClient
	Model        string
	SystemPrompt string
	MaxTokens    int32
	Temperature  float32
	Logger       *logging.Logger
	Metrics      *metrics.BridgeMetrics
}

// Service generates replies while keeping each sender's transcript.
type Service struct {
	store        Store
	client       LLMClient
	model        string
	systemPrompt string
	maxTokens    int32
	temperature  float32
	logger       *logging.Logger
	metrics      *metrics.BridgeMetrics
}

// NewService returns a Service. Zero MaxTokens/Temperature take the defaults
// of 150 tokens and 0.7.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Store == nil {
		panic("conversation: store cannot be nil")
	}
	if cfg.Client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	return &Service{
		store:        cfg.Store,
		client:       cfg.Client,
		model:        cfg.Model,
		systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// GenerateReply records prompt as a user turn, asks the completion service for
// a reply with the full transcript as context, and records the reply as an
// assistant turn. On failure it returns FallbackReply and leaves the user turn
// unpaired.
func (s *Service) GenerateReply(ctx context.Context, sender, prompt string) string {
	ctx, span := serviceTracer.Start(ctx, "conversation.generate_reply")
	defer span.End()
	span.SetAttributes(attribute.Int("wabridge.prompt_length", len(prompt)))

	unlock := s.store.Lock(sender)
	defer unlock()

	s.store.Append(ctx, sender, ChatRoleUser, prompt)
	transcript := s.store.GetOrCreate(ctx, sender)

	req := LLMRequest{
		Model:       s.model,
		Messages:    transcript,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}
	if s.systemPrompt != "" {
		req.System = []string{s.systemPrompt}
	}

	resp, err := s.client.Complete(ctx, req)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = upstream.Empty("completion", "empty completion text")
	}
	if err != nil {
		kind := upstream.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		s.logger.Error("completion failed; returning fallback reply",
			"error", err,
			"kind", string(kind),
			"turns", len(transcript),
		)
		s.metrics.ObserveCompletion(string(kind))
		return FallbackReply
	}

	reply := strings.TrimSpace(resp.Text)
	s.store.Append(ctx, sender, ChatRoleAssistant, reply)
	s.metrics.ObserveCompletion("ok")
	s.logger.Debug("completion succeeded",
		"turns", len(transcript)+1,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason,
	)
	return reply
}
