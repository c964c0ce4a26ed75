package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/models"
	"github.com/tradelens/backend/internal/store"
)

type FileController struct {
	store store.Store
}

func NewFileController(s store.Store) *FileController {
	return &FileController{store: s}
}

// respondStoreError maps store failures onto HTTP status codes.
func respondStoreError(c *gin.Context, err error, msg string) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, store.ErrDuplicateKey):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrUnknownFile):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		logger.WithError(err, "controllers").Error(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// ListFiles returns every file, most recent upload first
func (fc *FileController) ListFiles(c *gin.Context) {
	files, err := fc.store.ListFiles(c.Request.Context())
	if err != nil {
		respondStoreError(c, err, "Failed to fetch files")
		return
	}
	if files == nil {
		files = []models.File{}
	}
	c.JSON(http.StatusOK, files)
}

func (fc *FileController) GetFile(c *gin.Context) {
	f, err := fc.store.GetFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "Failed to fetch file")
		return
	}
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	c.JSON(http.StatusOK, f)
}

// CreateFile stores a new journal file. The id is chosen by the caller.
func (fc *FileController) CreateFile(c *gin.Context) {
	var f models.File
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := f.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := fc.store.PutFile(c.Request.Context(), &f); err != nil {
		respondStoreError(c, err, "Failed to save file")
		return
	}

	logger.WithFile(f.ID).WithField("name", f.Name).Info("File uploaded")
	c.JSON(http.StatusCreated, gin.H{"id": f.ID})
}

func (fc *FileController) DeleteFile(c *gin.Context) {
	id := c.Param("id")
	if err := fc.store.DeleteFile(c.Request.Context(), id); err != nil {
		respondStoreError(c, err, "Failed to delete file")
		return
	}
	logger.WithFile(id).Info("File deleted")
	c.JSON(http.StatusOK, gin.H{"message": "File deleted"})
}

func (fc *FileController) TouchFile(c *gin.Context) {
	if err := fc.store.TouchFileAccess(c.Request.Context(), c.Param("id")); err != nil {
		respondStoreError(c, err, "Failed to update access time")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Access time updated"})
}
