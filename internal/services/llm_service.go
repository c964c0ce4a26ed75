package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/models"
)

// LLMService talks to a local Ollama server.
type LLMService struct {
	baseURL      string
	llmModel     string
	client       *http.Client
	streamClient *http.Client
	apiCalls     []LLMAPICall
	callMutex    sync.RWMutex
}

type OllamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type OllamaGenerateResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"created_at"`
}

type OllamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OllamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []OllamaChatMessage    `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// OllamaChatChunk is one line of the streamed /api/chat response.
type OllamaChatChunk struct {
	Message OllamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

// LLMAPICall records one request to the model for diagnostics
type LLMAPICall struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Endpoint  string        `json:"endpoint"`
	Model     string        `json:"model"`
	FileID    string        `json:"fileId,omitempty"`
	CallType  string        `json:"callType"` // "analysis", "chat"
	Status    int           `json:"status"`
	Duration  time.Duration `json:"duration"`
	Response  string        `json:"response,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func NewLLMService(ollamaURL, llmModel string, timeoutSeconds int) *LLMService {
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	if llmModel == "" {
		llmModel = "llama3.1:8b"
	}
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeoutSeconds <= 0 {
		timeout = 0
	}

	return &LLMService{
		baseURL:      strings.TrimRight(ollamaURL, "/"),
		llmModel:     llmModel,
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		apiCalls:     make([]LLMAPICall, 0),
	}
}

func (ls *LLMService) Name() string { return "ollama" }

// GetAPICalls returns all tracked LLM API calls
func (ls *LLMService) GetAPICalls() []LLMAPICall {
	ls.callMutex.RLock()
	defer ls.callMutex.RUnlock()

	calls := make([]LLMAPICall, len(ls.apiCalls))
	copy(calls, ls.apiCalls)
	return calls
}

// ClearAPICalls clears the API call history
func (ls *LLMService) ClearAPICalls() {
	ls.callMutex.Lock()
	defer ls.callMutex.Unlock()
	ls.apiCalls = make([]LLMAPICall, 0)
}

func (ls *LLMService) addAPICall(call LLMAPICall) {
	ls.callMutex.Lock()
	defer ls.callMutex.Unlock()

	// Keep only last 100 calls
	if len(ls.apiCalls) >= 100 {
		ls.apiCalls = ls.apiCalls[1:]
	}
	ls.apiCalls = append(ls.apiCalls, call)
}

func (ls *LLMService) trackAPICall(endpoint, fileID, callType string, status int, duration time.Duration, response, errMsg string) {
	if len(response) > 2000 {
		response = response[:2000]
	}
	ls.addAPICall(LLMAPICall{
		ID:        fmt.Sprintf("llm_%d", time.Now().UnixNano()),
		Timestamp: time.Now(),
		Endpoint:  endpoint,
		Model:     ls.llmModel,
		FileID:    fileID,
		CallType:  callType,
		Status:    status,
		Duration:  duration,
		Response:  response,
		Error:     errMsg,
	})
}

// Analyze asks the model for the structured journal report and returns the
// raw response text.
func (ls *LLMService) Analyze(ctx context.Context, file *models.File) (string, error) {
	prompt, err := analysisPrompt(file)
	if err != nil {
		return "", err
	}

	startTime := time.Now()
	request := OllamaGenerateRequest{
		Model:  ls.llmModel,
		Prompt: prompt,
		Stream: false,
		Format: "json",
		Options: map[string]interface{}{
			"temperature": 0.2,
			"top_p":       0.8,
		},
	}
	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := ls.baseURL + "/api/generate"
	log := logger.WithLLM(ls.Name(), "analysis").WithField("file_id", file.ID)
	log.WithField("prompt_length", len(prompt)).Info("Making LLM request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ls.client.Do(req)
	elapsed := time.Since(startTime)
	if err != nil {
		ls.trackAPICall("/api/generate", file.ID, "analysis", 0, elapsed, "", err.Error())
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("Ollama API returned status %d, body: %s", resp.StatusCode, string(body))
		ls.trackAPICall("/api/generate", file.ID, "analysis", resp.StatusCode, elapsed, "", msg)
		return "", fmt.Errorf("%s", msg)
	}

	var ollamaResp OllamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		ls.trackAPICall("/api/generate", file.ID, "analysis", resp.StatusCode, elapsed, "", err.Error())
		return "", fmt.Errorf("failed to decode Ollama response: %w", err)
	}

	ls.trackAPICall("/api/generate", file.ID, "analysis", resp.StatusCode, time.Since(startTime), ollamaResp.Response, "")
	log.WithField("duration", time.Since(startTime).String()).Info("LLM request completed")
	return ollamaResp.Response, nil
}

// Chat streams a reply from /api/chat.
func (ls *LLMService) Chat(ctx context.Context, cr ChatRequest) (ChatStream, error) {
	system, err := chatSystemPrompt(cr)
	if err != nil {
		return nil, err
	}

	messages := []OllamaChatMessage{{Role: "system", Content: system}}
	for _, m := range cr.History {
		role := "user"
		if m.Role == models.RoleModel {
			role = "assistant"
		}
		messages = append(messages, OllamaChatMessage{Role: role, Content: m.Text})
	}

	jsonData, err := json.Marshal(OllamaChatRequest{
		Model:    ls.llmModel,
		Messages: messages,
		Stream:   true,
		Options:  map[string]interface{}{"temperature": 0.4},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	startTime := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ls.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ls.streamClient.Do(req)
	if err != nil {
		ls.trackAPICall("/api/chat", cr.File.ID, "chat", 0, time.Since(startTime), "", err.Error())
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("Ollama API returned status %d, body: %s", resp.StatusCode, string(body))
		ls.trackAPICall("/api/chat", cr.File.ID, "chat", resp.StatusCode, time.Since(startTime), "", msg)
		return nil, fmt.Errorf("%s", msg)
	}

	ls.trackAPICall("/api/chat", cr.File.ID, "chat", resp.StatusCode, time.Since(startTime), "", "")
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ollamaChatStream{body: resp.Body, scanner: scanner}, nil
}

type ollamaChatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *ollamaChatStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk OllamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("failed to decode chat chunk: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama: %s", chunk.Error)
		}
		if chunk.Done {
			s.done = true
			if chunk.Message.Content != "" {
				return chunk.Message.Content, nil
			}
			return "", io.EOF
		}
		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("chat stream interrupted: %w", err)
	}
	return "", io.ErrUnexpectedEOF
}

func (s *ollamaChatStream) Close() error {
	return s.body.Close()
}

// CheckHealth verifies the Ollama server is reachable
func (ls *LLMService) CheckHealth(ctx context.Context) error {
	_, err := ls.GetAvailableModels(ctx)
	if err != nil {
		return fmt.Errorf("LLM service not available: %w", err)
	}
	return nil
}

type OllamaModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// GetAvailableModels returns the models installed on the Ollama server
func (ls *LLMService) GetAvailableModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ls.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := ls.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get models: status %d", resp.StatusCode)
	}

	var modelsResp OllamaModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, err
	}

	var modelNames []string
	for _, model := range modelsResp.Models {
		modelNames = append(modelNames, model.Name)
	}
	return modelNames, nil
}
