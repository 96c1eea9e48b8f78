package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes returned in the JSON envelope. SECURITY_VIOLATION is
// terminal: the server has revoked the session and the client must
// fully re-authenticate, unlike UNAUTHORIZED which invites a retry.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeSecurityViolation = "SECURITY_VIOLATION"
	CodeUnverified        = "ACCOUNT_UNVERIFIED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}

func badRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, CodeInvalidRequest, message)
}

func unauthorized(c *gin.Context, code, message string) {
	respondError(c, http.StatusUnauthorized, code, message)
}

func internalError(c *gin.Context) {
	respondError(c, http.StatusInternalServerError, CodeInternal, "internal error")
}
