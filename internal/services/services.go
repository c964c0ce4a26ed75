package services

import (
	"context"
	"fmt"

	"github.com/tradelens/backend/internal/config"
	"github.com/tradelens/backend/internal/models"
)

// Analyzer produces the raw analysis text for a journal. The text is
// untrusted and is validated by the analysis package.
type Analyzer interface {
	Analyze(ctx context.Context, file *models.File) (string, error)
}

// ChatRequest carries one follow-up question. History already ends with the
// user message holding Message.
type ChatRequest struct {
	File    *models.File
	Report  string
	History []models.ChatMessage
	Message string
}

// ChatStream yields reply fragments in order. Recv returns io.EOF after the
// last fragment; any other error means the reply is incomplete.
type ChatStream interface {
	Recv() (string, error)
	Close() error
}

type Chatter interface {
	Chat(ctx context.Context, req ChatRequest) (ChatStream, error)
}

// Provider is a complete LLM backend.
type Provider interface {
	Analyzer
	Chatter
	Name() string
	CheckHealth(ctx context.Context) error
}

// NewProvider builds the provider selected by LLM_PROVIDER.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.Provider() {
	case "ollama":
		return NewLLMService(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaTimeoutSeconds), nil
	case "openai":
		return NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

func chatSystemPrompt(req ChatRequest) (string, error) {
	content, err := PrepareContent(req.File)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(JOURNAL_CHAT_SYSTEM_PROMPT, req.File.Name, content, req.Report), nil
}

func analysisPrompt(file *models.File) (string, error) {
	content, err := PrepareContent(file)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(JOURNAL_ANALYSIS_PROMPT, file.Name, content), nil
}
