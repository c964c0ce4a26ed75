package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/models"
)

// Dump is the portable backup format written for networked engines.
type Dump struct {
	CreatedAt time.Time                  `json:"createdAt"`
	Engine    Engine                     `json:"engine"`
	Files     []models.File              `json:"files"`
	Analyses  []models.AnalysisRecord    `json:"analyses"`
	Messages  []models.ChatMessageRecord `json:"messages"`
}

// DefaultBackupPath names a timestamped backup file inside dir.
func (d *Database) DefaultBackupPath(dir string, now time.Time) string {
	ext := ".json"
	if d.Engine == EngineSQLite {
		ext = ".db"
	}
	return filepath.Join(dir, "tradelens-"+now.UTC().Format("20060102-150405")+ext)
}

// Backup writes a copy of the database to dest and returns the path written.
// The embedded engine produces a consistent sqlite file; networked engines
// produce a JSON dump of all three tables.
func (d *Database) Backup(ctx context.Context, dest string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("backup target %s already exists", dest)
	}

	start := time.Now()
	if d.Engine == EngineSQLite {
		if err := d.DB.WithContext(ctx).Exec("VACUUM INTO ?", dest).Error; err != nil {
			return "", fmt.Errorf("vacuum into %s: %w", dest, err)
		}
	} else if err := d.dumpJSON(ctx, dest); err != nil {
		return "", err
	}

	logger.Info("Backup written", map[string]interface{}{
		"engine":      d.Engine,
		"path":        dest,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return dest, nil
}

func (d *Database) dumpJSON(ctx context.Context, dest string) error {
	dump := Dump{CreatedAt: time.Now().UTC(), Engine: d.Engine}
	tx := d.DB.WithContext(ctx)
	if err := tx.Order("uploaded_at DESC").Find(&dump.Files).Error; err != nil {
		return fmt.Errorf("dump files: %w", err)
	}
	if err := tx.Order("id ASC").Find(&dump.Analyses).Error; err != nil {
		return fmt.Errorf("dump analyses: %w", err)
	}
	if err := tx.Order("file_id ASC, position ASC").Find(&dump.Messages).Error; err != nil {
		return fmt.Errorf("dump chat messages: %w", err)
	}

	b, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	return os.WriteFile(dest, b, 0644)
}
