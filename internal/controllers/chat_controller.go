package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tradelens/backend/internal/models"
	"github.com/tradelens/backend/internal/store"
)

type ChatController struct {
	store store.Store
}

func NewChatController(s store.Store) *ChatController {
	return &ChatController{store: s}
}

type ReplaceChatRequest struct {
	Messages []models.ChatMessage `json:"messages"`
}

func (cc *ChatController) ListChats(c *gin.Context) {
	all, err := cc.store.ListAllChatHistories(c.Request.Context())
	if err != nil {
		respondStoreError(c, err, "Failed to fetch chat histories")
		return
	}
	if all == nil {
		all = map[string][]models.ChatMessage{}
	}
	c.JSON(http.StatusOK, all)
}

// GetChat returns the ordered history of one file; unknown files have an
// empty history.
func (cc *ChatController) GetChat(c *gin.Context) {
	msgs, err := cc.store.GetChatHistory(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		respondStoreError(c, err, "Failed to fetch chat history")
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (cc *ChatController) ReplaceChat(c *gin.Context) {
	var req ReplaceChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := cc.store.ReplaceChatHistory(c.Request.Context(), c.Param("fileId"), req.Messages); err != nil {
		respondStoreError(c, err, "Failed to save chat history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat history saved", "count": len(req.Messages)})
}

func (cc *ChatController) DeleteChat(c *gin.Context) {
	if err := cc.store.DeleteChatHistory(c.Request.Context(), c.Param("fileId")); err != nil {
		respondStoreError(c, err, "Failed to delete chat history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat history deleted"})
}
