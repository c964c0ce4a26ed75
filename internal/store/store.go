package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradelens/backend/internal/models"
)

var (
	// ErrStoreUnavailable means the store could not be reached or did not answer.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrIntegrity means a constraint was violated or a row could not be read back.
	ErrIntegrity = errors.New("store integrity error")
	// ErrDuplicateKey is returned by PutFile when the id already exists.
	ErrDuplicateKey = fmt.Errorf("%w: duplicate key", ErrIntegrity)
	// ErrInvalid is returned when a value is rejected before reaching the engine.
	ErrInvalid = fmt.Errorf("%w: invalid value", ErrIntegrity)
	// ErrUnknownFile is returned when an analysis or chat names a file that
	// is not stored.
	ErrUnknownFile = fmt.Errorf("%w: unknown file", ErrIntegrity)
)

// Store is the contract shared by the in-process engines and the remote
// client. Absent single items are reported as nil with a nil error.
type Store interface {
	ListFiles(ctx context.Context) ([]models.File, error)
	GetFile(ctx context.Context, id string) (*models.File, error)
	PutFile(ctx context.Context, f *models.File) error
	DeleteFile(ctx context.Context, id string) error
	TouchFileAccess(ctx context.Context, id string) error

	GetLatestAnalysis(ctx context.Context, fileID string) (*models.AnalysisResult, error)
	ListAllLatestAnalyses(ctx context.Context) (map[string]*models.AnalysisResult, error)
	PutAnalysis(ctx context.Context, fileID string, r *models.AnalysisResult, processingTimeMs int64) (uint, error)
	DeleteAnalyses(ctx context.Context, fileID string) error

	GetChatHistory(ctx context.Context, fileID string) ([]models.ChatMessage, error)
	ListAllChatHistories(ctx context.Context) (map[string][]models.ChatMessage, error)
	ReplaceChatHistory(ctx context.Context, fileID string, msgs []models.ChatMessage) error
	DeleteChatHistory(ctx context.Context, fileID string) error

	Stats(ctx context.Context) (*models.Stats, error)
	HealthCheck(ctx context.Context) error
}

// Backuper is implemented by stores that can write a backup of themselves.
type Backuper interface {
	Backup(ctx context.Context, path string) (string, error)
}

func validateMessages(msgs []models.ChatMessage) error {
	for i, m := range msgs {
		if m.Role != models.RoleUser && m.Role != models.RoleModel {
			return fmt.Errorf("%w: message %d has role %q", ErrInvalid, i, m.Role)
		}
	}
	return nil
}
