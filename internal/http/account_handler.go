package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scrippt-tech/scrippt-server/internal/domain"
	"github.com/scrippt-tech/scrippt-server/internal/service"
)

// AccountHandler mantiene dependencias para endpoints de cuenta y autenticación.
type AccountHandler struct {
	logger       *zap.Logger
	accounts     *service.AccountService
	verification *service.VerificationService
}

// NewAccountHandler crea una instancia de AccountHandler con dependencias necesarias.
func NewAccountHandler(logger *zap.Logger, accounts *service.AccountService, verification *service.VerificationService) *AccountHandler {
	return &AccountHandler{
		logger:       logger,
		accounts:     accounts,
		verification: verification,
	}
}

// CreateAccount maneja POST /account/create.
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create account request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.accounts.CreateAccount(c.Request.Context(), service.CreateAccountInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, err, "create account")
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Login maneja POST /account/auth/login.
func (h *AccountHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err, "login")
		return
	}
	c.JSON(http.StatusOK, res)
}

// GoogleAuth maneja POST /account/auth/google. Acepta token_id por query o JSON.
func (h *AccountHandler) GoogleAuth(c *gin.Context) {
	idToken := strings.TrimSpace(c.Query("token_id"))
	if idToken == "" {
		var req struct {
			TokenID string `json:"token_id"`
		}
		if err := c.ShouldBindJSON(&req); err == nil {
			idToken = strings.TrimSpace(req.TokenID)
		}
	}
	if idToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token_id is required"})
		return
	}

	res, err := h.accounts.AuthenticateGoogle(c.Request.Context(), idToken)
	if err != nil {
		h.fail(c, err, "authenticate with google")
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

// RequestVerificationCode maneja POST /account/auth/verification-code.
func (h *AccountHandler) RequestVerificationCode(c *gin.Context) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verification code request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if _, err := h.verification.Request(c.Request.Context(), req.Email, req.Name); err != nil {
		h.fail(c, err, "request verification code")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "code_sent"})
}

// VerifyEmail maneja POST /account/auth/verify-email.
func (h *AccountHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify email request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.verification.Confirm(c.Request.Context(), req.Email, req.Code); err != nil {
		h.fail(c, err, "verify email")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "verified"})
}

// GetAccount maneja GET /account.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, ok := accountIDFrom(c)
	if !ok {
		return
	}
	account, err := h.accounts.GetAccount(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "get account")
		return
	}
	c.JSON(http.StatusOK, account)
}

// UpdateAccount maneja PATCH /account con una lista de {path, value}.
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	id, ok := accountIDFrom(c)
	if !ok {
		return
	}
	var req []domain.AccountUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update account request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account, err := h.accounts.UpdateAccount(c.Request.Context(), id, req)
	if err != nil {
		h.fail(c, err, "update account")
		return
	}
	c.JSON(http.StatusOK, account)
}

// DeleteAccount maneja DELETE /account.
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	id, ok := accountIDFrom(c)
	if !ok {
		return
	}
	if err := h.accounts.DeleteAccount(c.Request.Context(), id); err != nil {
		h.fail(c, err, "delete account")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) fail(c *gin.Context, err error, action string) {
	status, msg, ok := errorStatus(err)
	if !ok {
		h.logger.Error(action+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not " + action})
		return
	}
	c.JSON(status, gin.H{"error": msg})
}
