package storage

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
	RoleSeller   = "seller"
)

type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         string
	IsVerified   bool

	VerificationCode      *string
	VerificationExpiresAt *time.Time

	ResetTokenHash *string
	ResetExpiresAt *time.Time

	RecoveryTokenHash *string
	RecoveryExpiresAt *time.Time

	RefreshTokenHash *string
	RefreshExpiresAt *time.Time

	CreatedAt time.Time
}

type NewUser struct {
	Name                  string
	Email                 string
	Phone                 string
	PasswordHash          string
	Role                  string
	VerificationCode      string
	VerificationExpiresAt time.Time
}

type UsedRefreshToken struct {
	UserID    uuid.UUID
	TokenHash string
	UsedAt    time.Time
}

type AuditLog struct {
	ActorID   uuid.UUID
	Action    string
	IP        string
	UserAgent string
}
