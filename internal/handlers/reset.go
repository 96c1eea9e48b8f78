package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/anonymouswhite07/bulkwala-backend/internal/events"
	"github.com/anonymouswhite07/bulkwala-backend/internal/security"
)

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ForgotPassword issues a reset token. The response is identical
// whether or not the email exists, so the endpoint cannot be used to
// enumerate accounts.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		badRequest(c, "email is required")
		return
	}

	if !h.allow(c, "password") {
		return
	}

	user, err := h.Store.GetUserByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			h.Logger.Error("user lookup failed", "error", err)
			internalError(c)
			return
		}
	} else {
		token, hash, genErr := h.TokenGen.New()
		if genErr != nil {
			h.Logger.Error("reset token generation failed", "error", genErr)
			internalError(c)
			return
		}
		if err := h.Store.SetResetToken(c.Request.Context(), user.ID, hash, h.Clock.Now().Add(h.Cfg.ResetTokenTTL)); err != nil {
			h.Logger.Error("set reset token failed", "error", err)
			internalError(c)
			return
		}
		h.Emitter.PasswordResetLink(c.Request.Context(), user.ID.String(), user.Email, token, requestID(c))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "if the account exists, a reset link was sent"})
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		badRequest(c, "token and newPassword are required")
		return
	}
	if len(req.NewPassword) < 8 {
		badRequest(c, "password must be at least 8 characters")
		return
	}

	user, err := h.Store.GetUserByResetHash(c.Request.Context(), security.HashToken(req.Token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			unauthorized(c, CodeUnauthorized, "invalid reset token")
			return
		}
		h.Logger.Error("reset token lookup failed", "error", err)
		internalError(c)
		return
	}

	now := h.Clock.Now()
	if user.ResetExpiresAt == nil || now.After(*user.ResetExpiresAt) {
		unauthorized(c, CodeTokenExpired, "reset token expired")
		return
	}

	hash, err := security.HashPassword(req.NewPassword, h.Cfg.Argon2)
	if err != nil {
		h.Logger.Error("password hash failed", "error", err)
		internalError(c)
		return
	}

	if err := h.Store.ResetPassword(c.Request.Context(), user.ID, hash); err != nil {
		h.Logger.Error("password reset failed", "error", err)
		internalError(c)
		return
	}

	h.audit(c, user.ID, "password_reset")
	h.Emitter.Lifecycle(c.Request.Context(), events.TypePasswordResetCompleted, user.ID.String(), user.Email, c.ClientIP(), requestID(c))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "password updated, please log in"})
}
