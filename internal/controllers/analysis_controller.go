package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tradelens/backend/internal/logger"
	"github.com/tradelens/backend/internal/models"
	"github.com/tradelens/backend/internal/store"
)

type AnalysisController struct {
	store store.Store
}

func NewAnalysisController(s store.Store) *AnalysisController {
	return &AnalysisController{store: s}
}

type CreateAnalysisRequest struct {
	FileID           string                 `json:"fileId" binding:"required"`
	Result           *models.AnalysisResult `json:"result" binding:"required"`
	ProcessingTimeMs int64                  `json:"processingTimeMs"`
}

// ListAnalyses returns the latest analysis of every file keyed by file id
func (ac *AnalysisController) ListAnalyses(c *gin.Context) {
	all, err := ac.store.ListAllLatestAnalyses(c.Request.Context())
	if err != nil {
		respondStoreError(c, err, "Failed to fetch analyses")
		return
	}
	if all == nil {
		all = map[string]*models.AnalysisResult{}
	}
	c.JSON(http.StatusOK, all)
}

func (ac *AnalysisController) GetAnalysis(c *gin.Context) {
	r, err := ac.store.GetLatestAnalysis(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		respondStoreError(c, err, "Failed to fetch analysis")
		return
	}
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
		return
	}
	c.JSON(http.StatusOK, r)
}

// CreateAnalysis appends a new analysis row; earlier rows are kept.
func (ac *AnalysisController) CreateAnalysis(c *gin.Context) {
	var req CreateAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	id, err := ac.store.PutAnalysis(c.Request.Context(), req.FileID, req.Result, req.ProcessingTimeMs)
	if err != nil {
		respondStoreError(c, err, "Failed to save analysis")
		return
	}

	logger.WithFile(req.FileID).WithFields(map[string]interface{}{
		"analysis_id":        id,
		"processing_time_ms": req.ProcessingTimeMs,
	}).Info("Analysis saved")
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (ac *AnalysisController) DeleteAnalyses(c *gin.Context) {
	if err := ac.store.DeleteAnalyses(c.Request.Context(), c.Param("fileId")); err != nil {
		respondStoreError(c, err, "Failed to delete analyses")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Analyses deleted"})
}
