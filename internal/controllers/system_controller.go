package controllers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/store"
	"github.com/tradelens/backend/internal/storage"
)

type SystemController struct {
	store     store.Store
	backuper  store.Backuper
	uploader  storage.Uploader
	backupDir string
}

// NewSystemController wires health, stats and backup. uploader may be nil,
// in which case backups stay on local disk.
func NewSystemController(s store.Store, b store.Backuper, uploader storage.Uploader, backupDir string) *SystemController {
	return &SystemController{store: s, backuper: b, uploader: uploader, backupDir: backupDir}
}

type BackupRequest struct {
	BackupPath string `json:"backupPath"`
}

func (sc *SystemController) Health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	dbStatus := gin.H{"status": "ok"}
	if err := sc.store.HealthCheck(c.Request.Context()); err != nil {
		status, code = "error", http.StatusServiceUnavailable
		dbStatus = gin.H{"status": "error", "error": err.Error()}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services": gin.H{
			"database": dbStatus,
		},
	})
}

func (sc *SystemController) Stats(c *gin.Context) {
	st, err := sc.store.Stats(c.Request.Context())
	if err != nil {
		respondStoreError(c, err, "Failed to fetch stats")
		return
	}
	c.JSON(http.StatusOK, st)
}

// Backup writes a backup into the backup directory. A requested path only
// chooses the file name.
func (sc *SystemController) Backup(c *gin.Context) {
	if sc.backuper == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Backups are not supported by this store"})
		return
	}

	var req BackupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	target := ""
	if req.BackupPath != "" {
		target = filepath.Join(sc.backupDir, filepath.Base(filepath.Clean(req.BackupPath)))
	}

	path, err := sc.backuper.Backup(c.Request.Context(), target)
	if err != nil {
		respondStoreError(c, err, "Backup failed")
		return
	}

	resp := gin.H{"message": "Backup created", "path": path}
	if sc.uploader != nil {
		url, err := sc.uploader.UploadBackup(c.Request.Context(), path)
		if err != nil {
			logger.WithError(err, "backup").Warn("Backup upload failed, kept local copy")
		} else {
			resp["url"] = url
		}
	}
	c.JSON(http.StatusOK, resp)
}
