package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRefreshConflict is returned when the conditional rotation update
// matches no row: the stored refresh hash changed between lookup and
// rotation, meaning a concurrent refresh already consumed the token.
var ErrRefreshConflict = errors.New("refresh token conflict")

// usedTokenCap bounds the per-user replay-detection history.
const usedTokenCap = 10

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `
	id, name, email, phone, password_hash, role, is_verified,
	verification_code, verification_expires_at,
	reset_token_hash, reset_expires_at,
	recovery_token_hash, recovery_expires_at,
	refresh_token_hash, refresh_expires_at,
	created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.Phone, &user.PasswordHash, &user.Role, &user.IsVerified,
		&user.VerificationCode, &user.VerificationExpiresAt,
		&user.ResetTokenHash, &user.ResetExpiresAt,
		&user.RecoveryTokenHash, &user.RecoveryExpiresAt,
		&user.RefreshTokenHash, &user.RefreshExpiresAt,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, u NewUser) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, phone, password_hash, role, is_verified, verification_code, verification_expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, now())
		RETURNING id
	`, u.Name, u.Email, u.Phone, u.PasswordHash, u.Role, u.VerificationCode, u.VerificationExpiresAt).Scan(&id)
	return id, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
}

func (s *Store) GetUserByRefreshHash(ctx context.Context, hash string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE refresh_token_hash = $1`, hash))
}

func (s *Store) GetUserByResetHash(ctx context.Context, hash string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1`, hash))
}

func (s *Store) SetVerification(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET verification_code = $2, verification_expires_at = $3
		WHERE id = $1
	`, userID, code, expiresAt)
	return err
}

func (s *Store) MarkVerified(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET is_verified = TRUE, verification_code = NULL, verification_expires_at = NULL
		WHERE id = $1
	`, userID)
	return err
}

func (s *Store) SetResetToken(ctx context.Context, userID uuid.UUID, hash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET reset_token_hash = $2, reset_expires_at = $3
		WHERE id = $1
	`, userID, hash, expiresAt)
	return err
}

// ResetPassword consumes the reset token and kills any live session:
// a password change invalidates the refresh credential and its history.
func (s *Store) ResetPassword(ctx context.Context, userID uuid.UUID, newHash string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET password_hash = $2,
		    reset_token_hash = NULL, reset_expires_at = NULL,
		    refresh_token_hash = NULL, refresh_expires_at = NULL
		WHERE id = $1
	`, userID, newHash); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM used_refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SetRefreshToken installs a new refresh credential at login. Any
// previously active credential is displaced: one session per account.
func (s *Store) SetRefreshToken(ctx context.Context, userID uuid.UUID, hash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET refresh_token_hash = $2, refresh_expires_at = $3
		WHERE id = $1
	`, userID, hash, expiresAt)
	return err
}

func (s *Store) SetRecoveryToken(ctx context.Context, userID uuid.UUID, hash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET recovery_token_hash = $2, recovery_expires_at = $3
		WHERE id = $1
	`, userID, hash, expiresAt)
	return err
}

// ConsumeRecoveryToken atomically looks up and clears an unexpired
// recovery credential, so it can never authenticate twice.
func (s *Store) ConsumeRecoveryToken(ctx context.Context, hash string, now time.Time) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		UPDATE users
		SET recovery_token_hash = NULL, recovery_expires_at = NULL
		WHERE recovery_token_hash = $1 AND recovery_expires_at > $2
		RETURNING `+userColumns+`
	`, hash, now))
}

// FindUserIDByUsedToken reports which user, if any, already consumed
// the given refresh credential.
func (s *Store) FindUserIDByUsedToken(ctx context.Context, hash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT user_id FROM used_refresh_tokens WHERE token_hash = $1 LIMIT 1
	`, hash).Scan(&id)
	return id, err
}

// RotateRefreshToken swaps providedHash for newHash with a conditional
// update, then retires providedHash into the capped history. The WHERE
// clause on the stored hash makes two racing rotations with the same
// token resolve to exactly one winner.
func (s *Store) RotateRefreshToken(ctx context.Context, userID uuid.UUID, providedHash, newHash string, expiresAt, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET refresh_token_hash = $3, refresh_expires_at = $4
		WHERE id = $1 AND refresh_token_hash = $2
	`, userID, providedHash, newHash, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRefreshConflict
	}

	if err := appendUsedToken(ctx, tx, userID, providedHash, now); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RecordUsedToken appends a replayed credential to the history outside
// a rotation (the reuse-detection branch).
func (s *Store) RecordUsedToken(ctx context.Context, userID uuid.UUID, hash string, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := appendUsedToken(ctx, tx, userID, hash, now); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func appendUsedToken(ctx context.Context, tx pgx.Tx, userID uuid.UUID, hash string, now time.Time) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO used_refresh_tokens (user_id, token_hash, used_at)
		VALUES ($1, $2, $3)
	`, userID, hash, now); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		DELETE FROM used_refresh_tokens
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM used_refresh_tokens
			WHERE user_id = $1
			ORDER BY used_at DESC, id DESC
			LIMIT $2
		)
	`, userID, usedTokenCap)
	return err
}

// RevokeRefreshToken clears the active credential after reuse
// detection; the history is kept so further replays stay detectable.
func (s *Store) RevokeRefreshToken(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET refresh_token_hash = NULL, refresh_expires_at = NULL
		WHERE id = $1
	`, userID)
	return err
}

// ClearRefreshState wipes the credential, its expiry, and the used
// history at logout.
func (s *Store) ClearRefreshState(ctx context.Context, userID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET refresh_token_hash = NULL, refresh_expires_at = NULL,
		    recovery_token_hash = NULL, recovery_expires_at = NULL
		WHERE id = $1
	`, userID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM used_refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) InsertAudit(ctx context.Context, entry AuditLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_id, action, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, entry.ActorID, entry.Action, entry.IP, entry.UserAgent)
	return err
}
