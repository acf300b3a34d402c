package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/wa-commerce-bridge/internal/upstream"
)

const geminiService = "gemini"

// geminiCall is one chat turn sent to Gemini.
type geminiCall struct {
	Model       string
	System      string
	Temperature float32
	MaxTokens   int32
	History     []*genai.Content
	Message     string
}

// geminiSender performs a geminiCall. The SDK implementation is sdkGeminiSender.
type geminiSender interface {
	send(ctx context.Context, call geminiCall) (*genai.GenerateContentResponse, error)
}

type sdkGeminiSender struct {
	client *genai.Client
}

func (s sdkGeminiSender) send(ctx context.Context, call geminiCall) (*genai.GenerateContentResponse, error) {
	model := s.client.GenerativeModel(call.Model)
	if call.Temperature >= 0 {
		model.SetTemperature(call.Temperature)
	}
	if call.MaxTokens > 0 {
		model.SetMaxOutputTokens(call.MaxTokens)
	}
	if call.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(call.System))
	}
	cs := model.StartChat()
	cs.History = call.History
	return cs.SendMessage(ctx, genai.Text(call.Message))
}

// GeminiLLMClient implements LLMClient using Google's Gemini API.
type GeminiLLMClient struct {
	sender  geminiSender
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient creates a new Gemini LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}
	c := newGeminiLLMClient(sdkGeminiSender{client: client}, modelID)
	c.client = client
	return c, nil
}

func newGeminiLLMClient(sender geminiSender, modelID string) *GeminiLLMClient {
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	return &GeminiLLMClient{sender: sender, modelID: modelID}
}

func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if len(req.Messages) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini requires at least one message")
	}

	model := c.modelID
	if strings.TrimSpace(req.Model) != "" {
		model = req.Model
	}
	last := req.Messages[len(req.Messages)-1]
	resp, err := c.sender.send(ctx, geminiCall{
		Model:       model,
		System:      strings.TrimSpace(strings.Join(req.System, "\n\n")),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		History:     geminiHistory(req.Messages[:len(req.Messages)-1]),
		Message:     last.Content,
	})
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			ue := upstream.Status(geminiService, apiErr.Code, apiErr.Message)
			ue.Err = err
			return LLMResponse{}, ue
		}
		return LLMResponse{}, upstream.Transport(geminiService, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return LLMResponse{}, upstream.Empty(geminiService, "no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return LLMResponse{}, upstream.Empty(geminiService, "empty content")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	result := LLMResponse{
		Text:       strings.TrimSpace(text.String()),
		StopReason: candidate.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

// geminiHistory maps prior turns onto Gemini's user/model roles.
func geminiHistory(turns []Turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		content := strings.TrimSpace(turn.Content)
		if content == "" || turn.Role == ChatRoleSystem {
			continue
		}
		role := "user"
		if turn.Role == ChatRoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}
	return history
}

// Close releases resources held by the Gemini client.
func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
