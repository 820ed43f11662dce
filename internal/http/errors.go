package http

import (
	"errors"
	"net/http"

	"github.com/scrippt-tech/scrippt-server/internal/domain"
	"github.com/scrippt-tech/scrippt-server/internal/service"
)

// errorStatus traduce errores de servicio a código HTTP y mensaje público.
// ok es false para errores no reconocidos (500).
func errorStatus(err error) (status int, msg string, ok bool) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, "account not found", true
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "account already exists", true
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound, "document not found", true
	case errors.Is(err, domain.ErrDocumentExists):
		return http.StatusConflict, "document already exists", true
	case errors.Is(err, service.ErrEmailNotVerified):
		return http.StatusBadRequest, "email not verified", true
	case errors.Is(err, service.ErrInvalidName),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidPassword),
		errors.Is(err, service.ErrInvalidPath),
		errors.Is(err, service.ErrInvalidTitle),
		errors.Is(err, service.ErrInvalidRating),
		errors.Is(err, service.ErrTokenMalformed):
		return http.StatusBadRequest, err.Error(), true
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials", true
	case errors.Is(err, service.ErrTokenSignature),
		errors.Is(err, service.ErrTokenNotYet),
		errors.Is(err, service.ErrUnknownKey),
		errors.Is(err, service.ErrInvalidAudience),
		errors.Is(err, service.ErrInvalidIssuer),
		errors.Is(err, service.ErrExpired):
		return http.StatusUnauthorized, err.Error(), true
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway, "identity provider unavailable", true
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests", true
	case errors.Is(err, service.ErrEmailSendFailure):
		return http.StatusServiceUnavailable, "email delivery unavailable", true
	case errors.Is(err, service.ErrCodeNotFound):
		return http.StatusNotFound, "verification code not found", true
	case errors.Is(err, service.ErrCodeAlreadyUsed):
		return http.StatusBadRequest, "verification code already used", true
	case errors.Is(err, service.ErrCodeMismatch):
		return http.StatusUnauthorized, "verification code mismatch", true
	}
	return http.StatusInternalServerError, "", false
}
