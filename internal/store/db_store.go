package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradelens/backend/internal/db"
	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/models"
	"gorm.io/gorm"
)

// DBStore implements Store on any engine opened by db.Open.
type DBStore struct {
	d   *db.Database
	gdb *gorm.DB

	// BackupDir receives backups when Backup is called without a path.
	BackupDir string
}

func NewDBStore(d *db.Database) *DBStore {
	return &DBStore{d: d, gdb: d.DB, BackupDir: "backups"}
}

// classify maps an engine error onto the store taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrIntegrity):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
	case errors.Is(err, gorm.ErrForeignKeyViolated),
		errors.Is(err, gorm.ErrCheckConstraintViolated),
		errors.Is(err, gorm.ErrInvalidData),
		errors.Is(err, gorm.ErrInvalidValue):
		return fmt.Errorf("%s: %w: %w", op, ErrIntegrity, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
}

func (s *DBStore) ListFiles(ctx context.Context) ([]models.File, error) {
	var files []models.File
	err := s.gdb.WithContext(ctx).Order("uploaded_at DESC").Order("id DESC").Find(&files).Error
	if err != nil {
		return nil, classify("list files", err)
	}
	return files, nil
}

func (s *DBStore) GetFile(ctx context.Context, id string) (*models.File, error) {
	var files []models.File
	if err := s.gdb.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&files).Error; err != nil {
		return nil, classify("get file", err)
	}
	if len(files) == 0 {
		return nil, nil
	}
	return &files[0], nil
}

// PutFile inserts f. An existing id is never overwritten.
func (s *DBStore) PutFile(ctx context.Context, f *models.File) error {
	if f == nil {
		return fmt.Errorf("put file: %w: nil file", ErrInvalid)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("put file: %w: %v", ErrInvalid, err)
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	if f.LastAccessedAt.IsZero() {
		f.LastAccessedAt = f.UploadedAt
	}

	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.File{}).Where("id = ?", f.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateKey
		}
		return tx.Create(f).Error
	})
	if err != nil {
		return classify("put file", err)
	}
	logger.WithStore("put_file").WithField("file_id", f.ID).Debug("File stored")
	return nil
}

// DeleteFile removes the file with its analyses and chat history. Deleting an
// absent id succeeds.
func (s *DBStore) DeleteFile(ctx context.Context, id string) error {
	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", id).Delete(&models.ChatMessageRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("file_id = ?", id).Delete(&models.AnalysisRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.File{}).Error
	})
	return classify("delete file", err)
}

func (s *DBStore) TouchFileAccess(ctx context.Context, id string) error {
	err := s.gdb.WithContext(ctx).Model(&models.File{}).
		Where("id = ?", id).
		Update("last_accessed_at", time.Now().UTC()).Error
	return classify("touch file", err)
}

// requireFile fails with ErrUnknownFile unless id is stored.
func requireFile(tx *gorm.DB, id string) error {
	var n int64
	if err := tx.Model(&models.File{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownFile, id)
	}
	return nil
}

func (s *DBStore) GetLatestAnalysis(ctx context.Context, fileID string) (*models.AnalysisResult, error) {
	var recs []models.AnalysisRecord
	err := s.gdb.WithContext(ctx).Where("file_id = ?", fileID).
		Order("analyzed_at DESC").Order("id DESC").
		Limit(1).Find(&recs).Error
	if err != nil {
		return nil, classify("get analysis", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0].Result(), nil
}

func (s *DBStore) ListAllLatestAnalyses(ctx context.Context) (map[string]*models.AnalysisResult, error) {
	tx := s.gdb.WithContext(ctx)
	newer := tx.Table("analysis_results AS n").Select("1").
		Where("n.file_id = a.file_id AND (n.analyzed_at > a.analyzed_at OR (n.analyzed_at = a.analyzed_at AND n.id > a.id))")

	var recs []models.AnalysisRecord
	if err := tx.Table("analysis_results AS a").Select("a.*").Where("NOT EXISTS (?)", newer).Find(&recs).Error; err != nil {
		return nil, classify("list analyses", err)
	}
	out := make(map[string]*models.AnalysisResult, len(recs))
	for i := range recs {
		out[recs[i].FileID] = recs[i].Result()
	}
	return out, nil
}

// PutAnalysis always inserts a new row and returns its id. The file must
// exist.
func (s *DBStore) PutAnalysis(ctx context.Context, fileID string, r *models.AnalysisResult, processingTimeMs int64) (uint, error) {
	if fileID == "" {
		return 0, fmt.Errorf("put analysis: %w: file id is required", ErrInvalid)
	}
	rec, err := models.NewAnalysisRecord(fileID, r, processingTimeMs)
	if err != nil {
		return 0, fmt.Errorf("put analysis: %w: %v", ErrInvalid, err)
	}
	err = s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireFile(tx, fileID); err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return 0, classify("put analysis", err)
	}
	return rec.ID, nil
}

func (s *DBStore) DeleteAnalyses(ctx context.Context, fileID string) error {
	err := s.gdb.WithContext(ctx).Where("file_id = ?", fileID).Delete(&models.AnalysisRecord{}).Error
	return classify("delete analyses", err)
}

func (s *DBStore) GetChatHistory(ctx context.Context, fileID string) ([]models.ChatMessage, error) {
	var recs []models.ChatMessageRecord
	err := s.gdb.WithContext(ctx).Where("file_id = ?", fileID).Order("position ASC").Find(&recs).Error
	if err != nil {
		return nil, classify("get chat", err)
	}
	out := make([]models.ChatMessage, len(recs))
	for i, r := range recs {
		out[i] = models.ChatMessage{Role: r.Role, Text: r.Text}
	}
	return out, nil
}

func (s *DBStore) ListAllChatHistories(ctx context.Context) (map[string][]models.ChatMessage, error) {
	var recs []models.ChatMessageRecord
	err := s.gdb.WithContext(ctx).Order("file_id ASC").Order("position ASC").Find(&recs).Error
	if err != nil {
		return nil, classify("list chats", err)
	}
	out := make(map[string][]models.ChatMessage)
	for _, r := range recs {
		out[r.FileID] = append(out[r.FileID], models.ChatMessage{Role: r.Role, Text: r.Text})
	}
	return out, nil
}

// ReplaceChatHistory swaps the whole history of fileID in one transaction,
// so readers see either the old list or the new one. The file must exist.
func (s *DBStore) ReplaceChatHistory(ctx context.Context, fileID string, msgs []models.ChatMessage) error {
	if err := validateMessages(msgs); err != nil {
		return fmt.Errorf("replace chat: %w", err)
	}
	recs := make([]models.ChatMessageRecord, len(msgs))
	for i, m := range msgs {
		recs[i] = models.ChatMessageRecord{FileID: fileID, Position: i, Role: m.Role, Text: m.Text}
	}

	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireFile(tx, fileID); err != nil {
			return err
		}
		if err := tx.Where("file_id = ?", fileID).Delete(&models.ChatMessageRecord{}).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		return tx.CreateInBatches(recs, 100).Error
	})
	return classify("replace chat", err)
}

func (s *DBStore) DeleteChatHistory(ctx context.Context, fileID string) error {
	err := s.gdb.WithContext(ctx).Where("file_id = ?", fileID).Delete(&models.ChatMessageRecord{}).Error
	return classify("delete chat", err)
}

func (s *DBStore) Stats(ctx context.Context) (*models.Stats, error) {
	var st models.Stats
	tx := s.gdb.WithContext(ctx)
	if err := tx.Model(&models.File{}).Count(&st.FileCount).Error; err != nil {
		return nil, classify("stats", err)
	}
	if err := tx.Model(&models.AnalysisRecord{}).Count(&st.AnalysisCount).Error; err != nil {
		return nil, classify("stats", err)
	}
	if err := tx.Model(&models.ChatMessageRecord{}).Count(&st.MessageCount).Error; err != nil {
		return nil, classify("stats", err)
	}
	size, err := s.d.StorageSize(ctx)
	if err != nil {
		logger.WithError(err, "store").Warn("Could not measure storage size")
	}
	st.StorageSize = size
	return &st, nil
}

func (s *DBStore) HealthCheck(ctx context.Context) error {
	if err := s.gdb.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return classify("health check", err)
	}
	return nil
}

// Backup writes a backup to path, or to a timestamped file in BackupDir when
// path is empty.
func (s *DBStore) Backup(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = s.d.DefaultBackupPath(s.BackupDir, time.Now())
	}
	out, err := s.d.Backup(ctx, path)
	if err != nil {
		return "", classify("backup", err)
	}
	return out, nil
}
