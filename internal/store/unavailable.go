package store

import (
	"context"
	"fmt"

	"github.com/tradelens/backend/internal/models"
)

// Unavailable returns a Store whose every call fails with ErrStoreUnavailable
// wrapping cause. It stands in for an engine that could not be opened so that
// callers fall back the same way they do for an unreachable server.
func Unavailable(cause error) Store {
	return unavailable{err: fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)}
}

type unavailable struct{ err error }

func (u unavailable) ListFiles(context.Context) ([]models.File, error) { return nil, u.err }
func (u unavailable) GetFile(context.Context, string) (*models.File, error) { return nil, u.err }
func (u unavailable) PutFile(context.Context, *models.File) error { return u.err }
func (u unavailable) DeleteFile(context.Context, string) error { return u.err }
func (u unavailable) TouchFileAccess(context.Context, string) error { return u.err }
func (u unavailable) DeleteAnalyses(context.Context, string) error { return u.err }
func (u unavailable) DeleteChatHistory(context.Context, string) error { return u.err }
func (u unavailable) Stats(context.Context) (*models.Stats, error) { return nil, u.err }
func (u unavailable) HealthCheck(context.Context) error { return u.err }
func (u unavailable) GetChatHistory(context.Context, string) ([]models.ChatMessage, error) {
	return nil, u.err
}

func (u unavailable) GetLatestAnalysis(context.Context, string) (*models.AnalysisResult, error) {
	return nil, u.err
}

func (u unavailable) ListAllLatestAnalyses(context.Context) (map[string]*models.AnalysisResult, error) {
	return nil, u.err
}

func (u unavailable) PutAnalysis(context.Context, string, *models.AnalysisResult, int64) (uint, error) {
	return 0, u.err
}

func (u unavailable) ListAllChatHistories(context.Context) (map[string][]models.ChatMessage, error) {
	return nil, u.err
}

func (u unavailable) ReplaceChatHistory(context.Context, string, []models.ChatMessage) error {
	return u.err
}
