package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/models"
)

const openAIMaxTokens = 4096

// OpenAIService uses the OpenAI chat completions API, or any server that
// speaks it when a base URL is configured.
type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(apiKey, model, baseURL string) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIService{client: openai.NewClientWithConfig(cfg), model: model}
}

func (s *OpenAIService) Name() string { return "openai" }

// withTokenLimit sets the right token field; reasoning models reject MaxTokens.
func (s *OpenAIService) withTokenLimit(req *openai.ChatCompletionRequest) {
	m := s.model
	if strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4") || strings.HasPrefix(m, "gpt-5") {
		req.MaxCompletionTokens = openAIMaxTokens
	} else {
		req.MaxTokens = openAIMaxTokens
	}
}

func (s *OpenAIService) Analyze(ctx context.Context, file *models.File) (string, error) {
	prompt, err := analysisPrompt(file)
	if err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	s.withTokenLimit(&req)

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	logger.WithLLM(s.Name(), "analysis").WithFields(map[string]interface{}{
		"file_id":  file.ID,
		"duration": time.Since(start).String(),
		"tokens":   resp.Usage.TotalTokens,
	}).Info("LLM request completed")
	return resp.Choices[0].Message.Content, nil
}

func (s *OpenAIService) Chat(ctx context.Context, cr ChatRequest) (ChatStream, error) {
	system, err := chatSystemPrompt(cr)
	if err != nil {
		return nil, err
	}

	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: system}}
	for _, m := range cr.History {
		role := openai.ChatMessageRoleUser
		if m.Role == models.RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}

	req := openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: messages,
		Stream:   true,
	}
	s.withTokenLimit(&req)

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat stream: %w", err)
	}
	return &openAIChatStream{stream: stream}, nil
}

type openAIChatStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIChatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openAIChatStream) Close() error {
	return s.stream.Close()
}

// CheckHealth lists models as a cheap authenticated round-trip.
func (s *OpenAIService) CheckHealth(ctx context.Context) error {
	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM service not available: %w", err)
	}
	return nil
}
