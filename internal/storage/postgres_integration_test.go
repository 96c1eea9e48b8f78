package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anonymouswhite07/bulkwala-backend/internal/security"
	"github.com/anonymouswhite07/bulkwala-backend/internal/testutil"
)

func TestRefreshLifecycleIntegration(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION") == "" {
		t.Skip("set RUN_DB_INTEGRATION=1 to run")
	}

	pool, err := testutil.SetupTestDB()
	if err != nil {
		t.Skipf("db connection failed: %v", err)
	}
	defer pool.Close()
	ctx := context.Background()
	defer testutil.CleanupTestData(ctx, pool)

	store := New(pool)
	now := time.Now().UTC()

	userID, err := store.CreateUser(ctx, NewUser{
		Name:                  "Integration User",
		Email:                 fmt.Sprintf("it-%d@example.com", now.UnixNano()),
		PasswordHash:          "$argon2id$placeholder",
		Role:                  RoleCustomer,
		VerificationCode:      "123456",
		VerificationExpiresAt: now.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	t.Run("set and look up refresh token", func(t *testing.T) {
		hash := security.HashToken("integration-t1")
		if err := store.SetRefreshToken(ctx, userID, hash, now.Add(time.Hour)); err != nil {
			t.Fatalf("set refresh: %v", err)
		}
		user, err := store.GetUserByRefreshHash(ctx, hash)
		if err != nil {
			t.Fatalf("lookup by hash: %v", err)
		}
		if user.ID != userID {
			t.Fatalf("wrong user returned")
		}
	})

	t.Run("conditional rotation", func(t *testing.T) {
		oldHash := security.HashToken("integration-t1")
		newHash := security.HashToken("integration-t2")
		if err := store.RotateRefreshToken(ctx, userID, oldHash, newHash, now.Add(time.Hour), now); err != nil {
			t.Fatalf("rotate: %v", err)
		}

		// Second rotation with the consumed hash must miss the
		// conditional update.
		if err := store.RotateRefreshToken(ctx, userID, oldHash, security.HashToken("integration-t3"), now.Add(time.Hour), now); !errors.Is(err, ErrRefreshConflict) {
			t.Fatalf("expected ErrRefreshConflict, got %v", err)
		}

		// The consumed hash is in the history now.
		ownerID, err := store.FindUserIDByUsedToken(ctx, oldHash)
		if err != nil {
			t.Fatalf("history lookup: %v", err)
		}
		if ownerID != userID {
			t.Fatalf("wrong owner in history")
		}
	})

	t.Run("history trims to cap", func(t *testing.T) {
		current := security.HashToken("integration-t2")
		for i := 0; i < 15; i++ {
			next := security.HashToken(fmt.Sprintf("integration-chain-%d", i))
			if err := store.RotateRefreshToken(ctx, userID, current, next, now.Add(time.Hour), now.Add(time.Duration(i)*time.Second)); err != nil {
				t.Fatalf("rotate %d: %v", i, err)
			}
			current = next
		}

		var count int
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM used_refresh_tokens WHERE user_id = $1`, userID).Scan(&count); err != nil {
			t.Fatalf("count history: %v", err)
		}
		if count > usedTokenCap {
			t.Fatalf("history has %d entries, cap is %d", count, usedTokenCap)
		}
	})

	t.Run("recovery token single use", func(t *testing.T) {
		hash := security.HashToken("integration-recovery")
		if err := store.SetRecoveryToken(ctx, userID, hash, now.Add(5*time.Minute)); err != nil {
			t.Fatalf("set recovery: %v", err)
		}

		user, err := store.ConsumeRecoveryToken(ctx, hash, now)
		if err != nil {
			t.Fatalf("consume recovery: %v", err)
		}
		if user.ID != userID {
			t.Fatalf("wrong user returned")
		}

		if _, err := store.ConsumeRecoveryToken(ctx, hash, now); !errors.Is(err, pgx.ErrNoRows) {
			t.Fatalf("expected second consume to fail, got %v", err)
		}
	})

	t.Run("clear refresh state", func(t *testing.T) {
		if err := store.ClearRefreshState(ctx, userID); err != nil {
			t.Fatalf("clear: %v", err)
		}
		user, err := store.GetUserByID(ctx, userID)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if user.RefreshTokenHash != nil || user.RecoveryTokenHash != nil {
			t.Fatalf("expected token state cleared")
		}
		var count int
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM used_refresh_tokens WHERE user_id = $1`, userID).Scan(&count); err != nil {
			t.Fatalf("count history: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected history cleared, found %d", count)
		}
	})
}
