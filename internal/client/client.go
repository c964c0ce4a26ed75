package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tradelens/backend/internal/models"
	"github.com/tradelens/backend/internal/store"
	"github.com/tradelens/backend/internal/transport"
)

// Client is a store.Store backed by a remote store server. Every call goes
// through the resilient transport.
type Client struct {
	baseURL string
	http    *http.Client
	tr      *transport.Transport
}

var _ store.Store = (*Client)(nil)
var _ store.Backuper = (*Client)(nil)

func New(baseURL string, tr *transport.Transport) *Client {
	if tr == nil {
		tr = transport.New(transport.Config{})
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		tr:      tr,
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type idResponse struct {
	ID json.RawMessage `json:"id"`
}

type putAnalysisRequest struct {
	FileID           string                 `json:"fileId"`
	Result           *models.AnalysisResult `json:"result"`
	ProcessingTimeMs int64                  `json:"processingTimeMs"`
}

type replaceChatRequest struct {
	Messages []models.ChatMessage `json:"messages"`
}

type backupRequest struct {
	BackupPath string `json:"backupPath,omitempty"`
}

type backupResponse struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

func (c *Client) call(ctx context.Context, op, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		payload = b
	}

	err := c.tr.Do(ctx, op, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var e struct {
				Error string `json:"error"`
			}
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			if json.Unmarshal(raw, &e) != nil || e.Error == "" {
				e.Error = strings.TrimSpace(string(raw))
			}
			return &transport.StatusError{Code: resp.StatusCode, Message: e.Error}
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
	return mapError(err)
}

// mapError translates transport failures into the store taxonomy while
// keeping the transport error in the chain for its user message.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *transport.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusConflict:
			return fmt.Errorf("%w: %w", store.ErrDuplicateKey, err)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %w", store.ErrInvalid, err)
		case http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %w", store.ErrUnknownFile, err)
		}
	}
	if errors.Is(err, transport.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", store.ErrStoreUnavailable, err)
}

func fileURL(id string) string {
	return "/files/" + url.PathEscape(id)
}

func (c *Client) ListFiles(ctx context.Context) ([]models.File, error) {
	var files []models.File
	if err := c.call(ctx, "list files", http.MethodGet, "/files", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) GetFile(ctx context.Context, id string) (*models.File, error) {
	var f models.File
	err := c.call(ctx, "get file", http.MethodGet, fileURL(id), nil, &f)
	if errors.Is(err, transport.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) PutFile(ctx context.Context, f *models.File) error {
	if f == nil {
		return fmt.Errorf("put file: %w: nil file", store.ErrInvalid)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("put file: %w: %v", store.ErrInvalid, err)
	}
	return c.call(ctx, "put file", http.MethodPost, "/files", f, &idResponse{})
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.call(ctx, "delete file", http.MethodDelete, fileURL(id), nil, nil)
}

func (c *Client) TouchFileAccess(ctx context.Context, id string) error {
	return c.call(ctx, "touch file", http.MethodPut, fileURL(id)+"/access", nil, nil)
}

func (c *Client) GetLatestAnalysis(ctx context.Context, fileID string) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	err := c.call(ctx, "get analysis", http.MethodGet, "/analysis/"+url.PathEscape(fileID), nil, &r)
	if errors.Is(err, transport.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.ChartData = r.ChartData.Normalize()
	if r.SuggestedQuestions == nil {
		r.SuggestedQuestions = []string{}
	}
	return &r, nil
}

func (c *Client) ListAllLatestAnalyses(ctx context.Context) (map[string]*models.AnalysisResult, error) {
	out := map[string]*models.AnalysisResult{}
	if err := c.call(ctx, "list analyses", http.MethodGet, "/analysis", nil, &out); err != nil {
		return nil, err
	}
	for id, r := range out {
		if r == nil {
			delete(out, id)
			continue
		}
		r.ChartData = r.ChartData.Normalize()
		if r.SuggestedQuestions == nil {
			r.SuggestedQuestions = []string{}
		}
	}
	return out, nil
}

func (c *Client) PutAnalysis(ctx context.Context, fileID string, r *models.AnalysisResult, processingTimeMs int64) (uint, error) {
	var resp struct {
		ID uint `json:"id"`
	}
	req := putAnalysisRequest{FileID: fileID, Result: r, ProcessingTimeMs: processingTimeMs}
	if err := c.call(ctx, "put analysis", http.MethodPost, "/analysis", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *Client) DeleteAnalyses(ctx context.Context, fileID string) error {
	return c.call(ctx, "delete analyses", http.MethodDelete, "/analysis/"+url.PathEscape(fileID), nil, nil)
}

func (c *Client) GetChatHistory(ctx context.Context, fileID string) ([]models.ChatMessage, error) {
	msgs := []models.ChatMessage{}
	if err := c.call(ctx, "get chat", http.MethodGet, "/chat/"+url.PathEscape(fileID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) ListAllChatHistories(ctx context.Context) (map[string][]models.ChatMessage, error) {
	out := map[string][]models.ChatMessage{}
	if err := c.call(ctx, "list chats", http.MethodGet, "/chat", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ReplaceChatHistory(ctx context.Context, fileID string, msgs []models.ChatMessage) error {
	req := replaceChatRequest{Messages: models.CloneMessages(msgs)}
	return c.call(ctx, "replace chat", http.MethodPost, "/chat/"+url.PathEscape(fileID), req, nil)
}

func (c *Client) DeleteChatHistory(ctx context.Context, fileID string) error {
	return c.call(ctx, "delete chat", http.MethodDelete, "/chat/"+url.PathEscape(fileID), nil, nil)
}

func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var st models.Stats
	if err := c.call(ctx, "stats", http.MethodGet, "/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	var h HealthResponse
	if err := c.call(ctx, "health check", http.MethodGet, "/health", nil, &h); err != nil {
		return err
	}
	if h.Status == "" {
		return fmt.Errorf("health check: %w: empty status", store.ErrStoreUnavailable)
	}
	return nil
}

// Backup asks the server to write a backup; an empty path lets the server
// choose.
func (c *Client) Backup(ctx context.Context, path string) (string, error) {
	var resp backupResponse
	if err := c.call(ctx, "backup", http.MethodPost, "/backup", backupRequest{BackupPath: path}, &resp); err != nil {
		return "", err
	}
	return resp.Path, nil
}
