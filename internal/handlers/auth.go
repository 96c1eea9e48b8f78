// Package handlers implements the auth HTTP surface: registration and
// verification, password and OTP login, refresh token rotation with
// reuse detection, password reset, and session logout.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/anonymouswhite07/bulkwala-backend/internal/config"
	"github.com/anonymouswhite07/bulkwala-backend/internal/cookie"
	"github.com/anonymouswhite07/bulkwala-backend/internal/events"
	"github.com/anonymouswhite07/bulkwala-backend/internal/metrics"
	"github.com/anonymouswhite07/bulkwala-backend/internal/rate"
	"github.com/anonymouswhite07/bulkwala-backend/internal/security"
	"github.com/anonymouswhite07/bulkwala-backend/internal/storage"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Store interface {
	CreateUser(ctx context.Context, u storage.NewUser) (uuid.UUID, error)
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*storage.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*storage.User, error)
	GetUserByRefreshHash(ctx context.Context, hash string) (*storage.User, error)
	GetUserByResetHash(ctx context.Context, hash string) (*storage.User, error)
	SetVerification(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, userID uuid.UUID) error
	SetResetToken(ctx context.Context, userID uuid.UUID, hash string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, userID uuid.UUID, newHash string) error
	SetRefreshToken(ctx context.Context, userID uuid.UUID, hash string, expiresAt time.Time) error
	SetRecoveryToken(ctx context.Context, userID uuid.UUID, hash string, expiresAt time.Time) error
	ConsumeRecoveryToken(ctx context.Context, hash string, now time.Time) (*storage.User, error)
	FindUserIDByUsedToken(ctx context.Context, hash string) (uuid.UUID, error)
	RotateRefreshToken(ctx context.Context, userID uuid.UUID, providedHash, newHash string, expiresAt, now time.Time) error
	RecordUsedToken(ctx context.Context, userID uuid.UUID, hash string, now time.Time) error
	RevokeRefreshToken(ctx context.Context, userID uuid.UUID) error
	ClearRefreshState(ctx context.Context, userID uuid.UUID) error
	InsertAudit(ctx context.Context, entry storage.AuditLog) error
}

type OTPStore interface {
	Issue(ctx context.Context, phone, code string) error
	Verify(ctx context.Context, phone, code string) error
}

type AuthHandler struct {
	Store    Store
	OTP      OTPStore
	Logger   *slog.Logger
	Cfg      *config.Config
	Limiter  rate.Limiter
	TokenGen security.TokenGenerator
	Clock    Clock
	Emitter  *events.Emitter
}

func NewAuthHandler(store Store, otpStore OTPStore, logger *slog.Logger, cfg *config.Config, limiter rate.Limiter, emitter *events.Emitter) *AuthHandler {
	return &AuthHandler{
		Store:    store,
		OTP:      otpStore,
		Logger:   logger,
		Cfg:      cfg,
		Limiter:  limiter,
		TokenGen: security.DefaultTokenGenerator{},
		Clock:    systemClock{},
		Emitter:  emitter,
	}
}

func (h *AuthHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/auth/register", h.Register)
	r.POST("/auth/verify", h.Verify)
	r.POST("/auth/verify/resend", h.ResendVerification)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)
	r.POST("/auth/otp/send", h.SendOTP)
	r.POST("/auth/otp/verify", h.VerifyOTP)
	r.POST("/auth/password/forgot", h.ForgotPassword)
	r.POST("/auth/password/reset", h.ResetPassword)
	r.GET("/auth/profile", h.RequireAuth(), h.Profile)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken  string `json:"refreshToken"`
	RecoveryToken string `json:"recoveryToken"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type userSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsVerified bool   `json:"isVerified"`
}

type authResponse struct {
	Success       bool         `json:"success"`
	AccessToken   string       `json:"accessToken"`
	RefreshToken  string       `json:"refreshToken"`
	RecoveryToken string       `json:"recoveryToken,omitempty"`
	User          *userSummary `json:"user,omitempty"`
}

func summarize(u *storage.User) *userSummary {
	return &userSummary{
		ID:         u.ID.String(),
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		IsVerified: u.IsVerified,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || !strings.Contains(req.Email, "@") {
		badRequest(c, "name and a valid email are required")
		return
	}
	if len(req.Password) < 8 {
		badRequest(c, "password must be at least 8 characters")
		return
	}
	role := req.Role
	if role == "" {
		role = storage.RoleCustomer
	}
	if role != storage.RoleCustomer && role != storage.RoleSeller {
		badRequest(c, "invalid role")
		return
	}

	hash, err := security.HashPassword(req.Password, h.Cfg.Argon2)
	if err != nil {
		h.Logger.Error("password hash failed", "error", err)
		internalError(c)
		return
	}

	code, err := security.NewNumericCode(6)
	if err != nil {
		h.Logger.Error("verification code generation failed", "error", err)
		internalError(c)
		return
	}

	now := h.Clock.Now()
	userID, err := h.Store.CreateUser(c.Request.Context(), storage.NewUser{
		Name:                  req.Name,
		Email:                 req.Email,
		Phone:                 strings.TrimSpace(req.Phone),
		PasswordHash:          hash,
		Role:                  role,
		VerificationCode:      code,
		VerificationExpiresAt: now.Add(h.Cfg.VerificationTTL),
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			badRequest(c, "email already registered")
			return
		}
		h.Logger.Error("create user failed", "error", err)
		internalError(c)
		return
	}

	h.Emitter.Lifecycle(c.Request.Context(), events.TypeUserRegistered, userID.String(), req.Email, c.ClientIP(), requestID(c))
	h.Emitter.VerificationCode(c.Request.Context(), userID.String(), req.Email, code, requestID(c))

	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "verification code sent"})
}

func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Code == "" {
		badRequest(c, "email and code are required")
		return
	}

	user, err := h.lookupByEmail(c, strings.ToLower(req.Email))
	if user == nil {
		if err == nil {
			respondError(c, http.StatusNotFound, CodeNotFound, "account not found")
		}
		return
	}
	if user.IsVerified {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "already verified"})
		return
	}

	now := h.Clock.Now()
	if user.VerificationCode == nil || user.VerificationExpiresAt == nil ||
		*user.VerificationCode != req.Code || now.After(*user.VerificationExpiresAt) {
		badRequest(c, "invalid or expired code")
		return
	}

	if err := h.Store.MarkVerified(c.Request.Context(), user.ID); err != nil {
		h.Logger.Error("mark verified failed", "error", err)
		internalError(c)
		return
	}

	h.Emitter.Lifecycle(c.Request.Context(), events.TypeUserVerified, user.ID.String(), user.Email, c.ClientIP(), requestID(c))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "account verified"})
}

func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		badRequest(c, "email is required")
		return
	}

	user, err := h.lookupByEmail(c, strings.ToLower(req.Email))
	if user == nil {
		if err == nil {
			respondError(c, http.StatusNotFound, CodeNotFound, "account not found")
		}
		return
	}
	if user.IsVerified {
		badRequest(c, "account already verified")
		return
	}

	if err := h.reissueVerification(c, user); err != nil {
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "verification code sent"})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		badRequest(c, "email and password are required")
		return
	}

	if !h.allow(c, "login") {
		return
	}

	user, err := h.lookupByEmail(c, strings.ToLower(req.Email))
	if user == nil {
		if err == nil {
			metrics.LoginTotal.WithLabelValues("invalid_credentials").Inc()
			unauthorized(c, CodeUnauthorized, "invalid credentials")
		}
		return
	}

	ok, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		metrics.LoginTotal.WithLabelValues("invalid_credentials").Inc()
		unauthorized(c, CodeUnauthorized, "invalid credentials")
		return
	}

	if !user.IsVerified {
		// Credentials were correct: re-issue a fresh code so the
		// client can complete verification instead of dead-ending.
		if err := h.reissueVerification(c, user); err != nil {
			internalError(c)
			return
		}
		metrics.LoginTotal.WithLabelValues("unverified").Inc()
		respondError(c, http.StatusForbidden, CodeUnverified, "account not verified, verification code sent")
		return
	}

	resp, err := h.issueSession(c, user)
	if err != nil {
		metrics.LoginTotal.WithLabelValues("error").Inc()
		internalError(c)
		return
	}

	metrics.LoginTotal.WithLabelValues("success").Inc()
	h.audit(c, user.ID, "login")
	h.Emitter.Lifecycle(c.Request.Context(), events.TypeLoginSucceeded, user.ID.String(), user.Email, c.ClientIP(), requestID(c))
	c.JSON(http.StatusOK, resp)
}

// Refresh exchanges a refresh credential for a fresh token pair.
// Credential lookup order: cookie, body, Authorization bearer, and
// finally the body recovery token for clients whose cookies were
// dropped by the browser.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	// Body is optional: the credential usually arrives as a cookie.
	_ = c.ShouldBindJSON(&req)

	provided := h.locateRefreshCredential(c, req)
	if provided == "" && req.RecoveryToken == "" {
		metrics.RefreshTotal.WithLabelValues("missing_credential").Inc()
		unauthorized(c, CodeUnauthorized, "refresh credential required")
		return
	}

	ctx := c.Request.Context()
	now := h.Clock.Now()

	if provided != "" {
		providedHash := security.HashToken(provided)
		user, err := h.Store.GetUserByRefreshHash(ctx, providedHash)
		switch {
		case err == nil:
			h.rotate(c, user, provided, providedHash, now)
			return
		case errors.Is(err, pgx.ErrNoRows):
			// Not the active credential. A hit in the used-token
			// history means a rotated-away token came back: revoke
			// the session and force a re-login.
			ownerID, histErr := h.Store.FindUserIDByUsedToken(ctx, providedHash)
			if histErr == nil {
				h.revokeOnReuse(c, ownerID, providedHash, now)
				return
			}
			if !errors.Is(histErr, pgx.ErrNoRows) {
				h.Logger.Error("used token lookup failed", "error", histErr)
				internalError(c)
				return
			}
		default:
			h.Logger.Error("refresh lookup failed", "error", err)
			internalError(c)
			return
		}
	}

	if req.RecoveryToken != "" {
		h.refreshViaRecovery(c, req.RecoveryToken, now)
		return
	}

	metrics.RefreshTotal.WithLabelValues("invalid_credential").Inc()
	unauthorized(c, CodeUnauthorized, "invalid refresh credential")
}

func (h *AuthHandler) rotate(c *gin.Context, user *storage.User, provided, providedHash string, now time.Time) {
	ctx := c.Request.Context()

	if user.RefreshExpiresAt == nil || now.After(*user.RefreshExpiresAt) {
		metrics.RefreshTotal.WithLabelValues("expired").Inc()
		unauthorized(c, CodeTokenExpired, "refresh credential expired")
		return
	}

	newToken, newHash, err := h.TokenGen.New()
	if err != nil {
		h.Logger.Error("refresh token generation failed", "error", err)
		internalError(c)
		return
	}

	err = h.Store.RotateRefreshToken(ctx, user.ID, providedHash, newHash, now.Add(h.Cfg.RefreshTokenTTL), now)
	if errors.Is(err, storage.ErrRefreshConflict) {
		// Lost the conditional update: the same token was presented
		// concurrently and already rotated away. Same treatment as a
		// replay from history.
		h.revokeOnReuse(c, user.ID, providedHash, now)
		return
	}
	if err != nil {
		h.Logger.Error("token rotation failed", "error", err)
		internalError(c)
		return
	}

	resp, err := h.respondTokens(c, user, newToken, now)
	if err != nil {
		internalError(c)
		return
	}
	metrics.RefreshTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) revokeOnReuse(c *gin.Context, userID uuid.UUID, providedHash string, now time.Time) {
	ctx := c.Request.Context()
	if err := h.Store.RecordUsedToken(ctx, userID, providedHash, now); err != nil {
		h.Logger.Error("record used token failed", "error", err)
	}
	if err := h.Store.RevokeRefreshToken(ctx, userID); err != nil {
		h.Logger.Error("revoke refresh token failed", "error", err)
	}

	metrics.RefreshTotal.WithLabelValues("reuse_detected").Inc()
	metrics.RefreshReuseDetected.Inc()
	h.audit(c, userID, "refresh_reuse_detected")
	h.Emitter.Lifecycle(ctx, events.TypeRefreshReuseDetected, userID.String(), "", c.ClientIP(), requestID(c))
	unauthorized(c, CodeSecurityViolation, "refresh token reuse detected, session revoked")
}

func (h *AuthHandler) refreshViaRecovery(c *gin.Context, recoveryToken string, now time.Time) {
	ctx := c.Request.Context()
	user, err := h.Store.ConsumeRecoveryToken(ctx, security.HashToken(recoveryToken), now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.RefreshTotal.WithLabelValues("invalid_credential").Inc()
			unauthorized(c, CodeUnauthorized, "invalid recovery credential")
			return
		}
		h.Logger.Error("recovery token lookup failed", "error", err)
		internalError(c)
		return
	}

	// No prior refresh token to retire on this path: the browser lost
	// the cookie, it did not rotate it.
	resp, err := h.issueSession(c, user)
	if err != nil {
		internalError(c)
		return
	}
	metrics.RefreshTotal.WithLabelValues("recovery").Inc()
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	if provided := h.locateRefreshCredential(c, req); provided != "" {
		user, err := h.Store.GetUserByRefreshHash(ctx, security.HashToken(provided))
		if err == nil {
			if err := h.Store.ClearRefreshState(ctx, user.ID); err != nil {
				h.Logger.Error("clear refresh state failed", "error", err)
				internalError(c)
				return
			}
			h.audit(c, user.ID, "logout")
			h.Emitter.Lifecycle(ctx, events.TypeLogout, user.ID.String(), user.Email, c.ClientIP(), requestID(c))
		} else if !errors.Is(err, pgx.ErrNoRows) {
			h.Logger.Error("logout lookup failed", "error", err)
			internalError(c)
			return
		}
	}

	attrs := cookie.Derive(h.Cfg.Cookie, c.Request)
	cookie.Clear(c.Writer, cookie.AccessCookie, attrs)
	cookie.Clear(c.Writer, cookie.RefreshCookie, attrs)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AuthHandler) Profile(c *gin.Context) {
	claims := claimsFrom(c)
	if claims == nil {
		unauthorized(c, CodeUnauthorized, "authentication required")
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		unauthorized(c, CodeUnauthorized, "invalid token subject")
		return
	}

	user, err := h.Store.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(c, http.StatusNotFound, CodeNotFound, "account not found")
			return
		}
		h.Logger.Error("profile lookup failed", "error", err)
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user": gin.H{
			"id":         user.ID.String(),
			"name":       user.Name,
			"email":      user.Email,
			"phone":      user.Phone,
			"role":       user.Role,
			"isVerified": user.IsVerified,
			"createdAt":  user.CreatedAt,
		},
	})
}

// issueSession mints a fresh token pair with no prior credential to
// retire. Used by login, OTP login, and the recovery path.
func (h *AuthHandler) issueSession(c *gin.Context, user *storage.User) (*authResponse, error) {
	now := h.Clock.Now()
	refreshToken, refreshHash, err := h.TokenGen.New()
	if err != nil {
		h.Logger.Error("refresh token generation failed", "error", err)
		return nil, err
	}
	if err := h.Store.SetRefreshToken(c.Request.Context(), user.ID, refreshHash, now.Add(h.Cfg.RefreshTokenTTL)); err != nil {
		h.Logger.Error("refresh token insert failed", "error", err)
		return nil, err
	}
	return h.respondTokens(c, user, refreshToken, now)
}

// respondTokens mints the access token, applies the cookie policy, and
// attaches a recovery token for browsers that will not return the
// cross-site cookies. Tokens are duplicated in the body as a fallback
// channel.
func (h *AuthHandler) respondTokens(c *gin.Context, user *storage.User, refreshToken string, now time.Time) (*authResponse, error) {
	access, err := security.NewAccessToken(user.ID.String(), user.Role, user.Email,
		[]byte(h.Cfg.AccessSecret), h.Cfg.JWTIssuer, h.Cfg.AccessTokenTTL, now)
	if err != nil {
		h.Logger.Error("jwt sign failed", "error", err)
		return nil, err
	}

	resp := &authResponse{
		Success:      true,
		AccessToken:  access,
		RefreshToken: refreshToken,
		User:         summarize(user),
	}

	if cookie.NeedsRecoveryToken(h.Cfg.Cookie, c.Request.UserAgent()) {
		recovery, recoveryHash, err := h.TokenGen.New()
		if err != nil {
			h.Logger.Error("recovery token generation failed", "error", err)
			return nil, err
		}
		if err := h.Store.SetRecoveryToken(c.Request.Context(), user.ID, recoveryHash, now.Add(h.Cfg.RecoveryTokenTTL)); err != nil {
			h.Logger.Error("recovery token insert failed", "error", err)
			return nil, err
		}
		resp.RecoveryToken = recovery
	}

	attrs := cookie.Derive(h.Cfg.Cookie, c.Request)
	cookie.Set(c.Writer, cookie.AccessCookie, access, attrs)
	cookie.Set(c.Writer, cookie.RefreshCookie, refreshToken, attrs)
	return resp, nil
}

func (h *AuthHandler) locateRefreshCredential(c *gin.Context, req refreshRequest) string {
	if v, err := c.Cookie(cookie.RefreshCookie); err == nil && v != "" {
		return v
	}
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	return security.ExtractBearer(c.GetHeader("Authorization"))
}

func (h *AuthHandler) reissueVerification(c *gin.Context, user *storage.User) error {
	code, err := security.NewNumericCode(6)
	if err != nil {
		h.Logger.Error("verification code generation failed", "error", err)
		return err
	}
	if err := h.Store.SetVerification(c.Request.Context(), user.ID, code, h.Clock.Now().Add(h.Cfg.VerificationTTL)); err != nil {
		h.Logger.Error("set verification failed", "error", err)
		return err
	}
	h.Emitter.VerificationCode(c.Request.Context(), user.ID.String(), user.Email, code, requestID(c))
	return nil
}

// lookupByEmail fetches a user, writing the internal-error response
// itself. Returns (nil, nil) when the user does not exist so callers
// choose their own not-found shape.
func (h *AuthHandler) lookupByEmail(c *gin.Context, email string) (*storage.User, error) {
	user, err := h.Store.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		h.Logger.Error("user lookup failed", "error", err)
		internalError(c)
		return nil, err
	}
	return user, nil
}

func (h *AuthHandler) allow(c *gin.Context, route string) bool {
	if h.Limiter == nil {
		return true
	}
	allowed, retryAfter, err := h.Limiter.Allow(c.Request.Context(), route+":"+c.ClientIP(), h.Clock.Now())
	if err != nil {
		h.Logger.Error("rate limiter failed", "error", err)
		// Fail open: an unreachable limiter must not lock everyone out.
		return true
	}
	if !allowed {
		metrics.RateLimited.WithLabelValues(route).Inc()
		if retryAfter > 0 {
			c.Header("Retry-After", retryAfter.Round(time.Second).String())
		}
		respondError(c, http.StatusTooManyRequests, CodeRateLimited, "too many requests")
		return false
	}
	return true
}

func (h *AuthHandler) audit(c *gin.Context, userID uuid.UUID, action string) {
	entry := storage.AuditLog{
		ActorID:   userID,
		Action:    action,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if err := h.Store.InsertAudit(c.Request.Context(), entry); err != nil {
		h.Logger.Error("audit insert failed", "action", action, "error", err)
	}
}

func requestID(c *gin.Context) string {
	return c.GetString("X-Request-ID")
}
