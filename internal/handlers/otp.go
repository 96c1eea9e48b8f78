package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/anonymouswhite07/bulkwala-backend/internal/events"
	"github.com/anonymouswhite07/bulkwala-backend/internal/metrics"
	"github.com/anonymouswhite07/bulkwala-backend/internal/otp"
	"github.com/anonymouswhite07/bulkwala-backend/internal/security"
)

type otpRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Phone) == "" {
		badRequest(c, "phone is required")
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)

	if !h.allow(c, "otp") {
		return
	}

	if _, err := h.Store.GetUserByPhone(c.Request.Context(), req.Phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(c, http.StatusNotFound, CodeNotFound, "no account for this phone")
			return
		}
		h.Logger.Error("phone lookup failed", "error", err)
		internalError(c)
		return
	}

	code, err := security.NewNumericCode(6)
	if err != nil {
		h.Logger.Error("otp generation failed", "error", err)
		internalError(c)
		return
	}
	if err := h.OTP.Issue(c.Request.Context(), req.Phone, code); err != nil {
		h.Logger.Error("otp store failed", "error", err)
		internalError(c)
		return
	}

	h.Emitter.OTPCode(c.Request.Context(), req.Phone, code, requestID(c))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "otp sent"})
}

func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" || req.Code == "" {
		badRequest(c, "phone and code are required")
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)

	if !h.allow(c, "otp") {
		return
	}

	if err := h.OTP.Verify(c.Request.Context(), req.Phone, req.Code); err != nil {
		switch {
		case errors.Is(err, otp.ErrCodeMismatch):
			unauthorized(c, CodeUnauthorized, "invalid code")
		case errors.Is(err, otp.ErrCodeExpired):
			unauthorized(c, CodeTokenExpired, "code expired")
		default:
			h.Logger.Error("otp verify failed", "error", err)
			internalError(c)
		}
		return
	}

	user, err := h.Store.GetUserByPhone(c.Request.Context(), req.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(c, http.StatusNotFound, CodeNotFound, "no account for this phone")
			return
		}
		h.Logger.Error("phone lookup failed", "error", err)
		internalError(c)
		return
	}

	// Possession of the phone proves the account: a code delivered and
	// echoed back also completes verification for new accounts.
	if !user.IsVerified {
		if err := h.Store.MarkVerified(c.Request.Context(), user.ID); err != nil {
			h.Logger.Error("mark verified failed", "error", err)
			internalError(c)
			return
		}
		user.IsVerified = true
	}

	resp, err := h.issueSession(c, user)
	if err != nil {
		internalError(c)
		return
	}

	metrics.LoginTotal.WithLabelValues("otp_success").Inc()
	h.audit(c, user.ID, "otp_login")
	h.Emitter.Lifecycle(c.Request.Context(), events.TypeLoginSucceeded, user.ID.String(), user.Email, c.ClientIP(), requestID(c))
	c.JSON(http.StatusOK, resp)
}
