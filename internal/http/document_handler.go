package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scrippt-tech/scrippt-server/internal/domain"
	"github.com/scrippt-tech/scrippt-server/internal/service"
)

// DocumentHandler expone los documentos guardados de la cuenta autenticada.
type DocumentHandler struct {
	logger    *zap.Logger
	documents *service.DocumentService
}

func NewDocumentHandler(logger *zap.Logger, documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		logger:    logger,
		documents: documents,
	}
}

// CreateDocument maneja POST /document.
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	id, ok := accountIDFrom(c)
	if !ok {
		return
	}
	var req struct {
		Title   string `json:"title" binding:"required"`
		Prompt  string `json:"prompt"`
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create document request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.documents.Create(c.Request.Context(), id, service.DocumentInput{
		Title:   req.Title,
		Prompt:  req.Prompt,
		Content: req.Content,
	})
	if err != nil {
		h.fail(c, err, "create document")
		return
	}
	c.JSON(http.StatusCreated, account)
}

// UpdateDocument maneja PUT /document/:field_id.
func (h *DocumentHandler) UpdateDocument(c *gin.Context) {
	id, ok := accountIDFrom(c)
	if !ok {
		return
	}
	var req struct {
		Title   *string                `json:"title"`
		Content *string                `json:"content"`
		Rating  *domain.DocumentRating `json:"rating"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update document request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.documents.Update(c.Request.Context(), id, c.Param("field_id"), domain.DocumentChanges{
		Title:   req.Title,
		Content: req.Content,
		Rating:  req.Rating,
	})
	if err != nil {
		h.fail(c, err, "update document")
		return
	}
	c.JSON(http.StatusOK, account)
}

// DeleteDocument maneja DELETE /document/:field_id.
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	id, ok := accountIDFrom(c)
	if !ok {
		return
	}
	account, err := h.documents.Delete(c.Request.Context(), id, c.Param("field_id"))
	if err != nil {
		h.fail(c, err, "delete document")
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *DocumentHandler) fail(c *gin.Context, err error, action string) {
	status, msg, ok := errorStatus(err)
	if !ok {
		h.logger.Error(action+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not " + action})
		return
	}
	c.JSON(status, gin.H{"error": msg})
}
