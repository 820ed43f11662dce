package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scrippt-tech/scrippt-server/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	tokens *service.TokenService,
	accountH *AccountHandler,
	profileH *ProfileHandler,
	documentH *DocumentHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	account := r.Group("/account")
	account.POST("/create", accountH.CreateAccount)

	auth := account.Group("/auth")
	auth.POST("/login", accountH.Login)
	auth.POST("/google", accountH.GoogleAuth)
	auth.POST("/verification-code", accountH.RequestVerificationCode)
	auth.POST("/verify-email", accountH.VerifyEmail)

	authed := r.Group("", JWTAuthMiddleware(tokens))
	authed.GET("/account", accountH.GetAccount)
	authed.PATCH("/account", accountH.UpdateAccount)
	authed.DELETE("/account", accountH.DeleteAccount)
	authed.PATCH("/profile", profileH.PatchProfile)
	authed.PUT("/profile", profileH.ReplaceProfile)
	authed.POST("/document", documentH.CreateDocument)
	authed.PUT("/document/:field_id", documentH.UpdateDocument)
	authed.DELETE("/document/:field_id", documentH.DeleteDocument)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
