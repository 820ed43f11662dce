package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scrippt-tech/scrippt-server/internal/domain"
	"github.com/scrippt-tech/scrippt-server/internal/service"
)

// ProfileHandler expone las operaciones sobre el perfil de la cuenta autenticada.
type ProfileHandler struct {
	logger   *zap.Logger
	profiles *service.ProfileService
}

func NewProfileHandler(logger *zap.Logger, profiles *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{
		logger:   logger,
		profiles: profiles,
	}
}

// PatchProfile maneja PATCH /profile con una lista ordenada de operaciones.
func (h *ProfileHandler) PatchProfile(c *gin.Context) {
	id, ok := accountIDFrom(c)
	if !ok {
		return
	}
	var ops []domain.PatchOperation
	if err := c.ShouldBindJSON(&ops); err != nil {
		h.logger.Warn("invalid profile patch request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.profiles.Apply(c.Request.Context(), id, ops)
	if err != nil {
		var patchErr *service.PatchError
		switch {
		case errors.Is(err, domain.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		case errors.As(err, &patchErr) && patchErr.Code() != "internal":
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   patchErr.Err.Error(),
				"code":    patchErr.Code(),
				"index":   patchErr.Index,
				"applied": patchErr.Applied(),
			})
		default:
			h.logger.Error("profile patch failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		}
		return
	}
	c.JSON(http.StatusOK, account)
}

// ReplaceProfile maneja PUT /profile: importa un perfil completo.
func (h *ProfileHandler) ReplaceProfile(c *gin.Context) {
	id, ok := accountIDFrom(c)
	if !ok {
		return
	}
	var profile domain.Profile
	if err := c.ShouldBindJSON(&profile); err != nil {
		h.logger.Warn("invalid profile import request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.profiles.ReplaceProfile(c.Request.Context(), id, profile)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		h.logger.Error("profile import failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not import profile"})
		return
	}
	c.JSON(http.StatusOK, account)
}
