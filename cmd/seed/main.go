// Seeds demo accounts for local development. Refuses to run outside
// dev/test environments.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anonymouswhite07/bulkwala-backend/internal/security"
)

type seedUser struct {
	name     string
	email    string
	phone    string
	password string
	role     string
}

var demoUsers = []seedUser{
	{name: "Demo Customer", email: "demo@example.com", phone: "+15550000001", password: "demo-password", role: "customer"},
	{name: "Demo Seller", email: "seller@example.com", phone: "+15550000002", password: "seller-password", role: "seller"},
	{name: "Demo Admin", email: "admin@example.com", phone: "+15550000003", password: "admin-password", role: "admin"},
}

func main() {
	env := getEnv("BW_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: BW_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "bulkwala")
	user := getEnv("POSTGRES_USER", "bulkwala")
	password := getEnv("POSTGRES_PASSWORD", "bulkwala")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	fmt.Println("Seeding database...")

	params := security.Argon2Params{Memory: 64 * 1024, Iterations: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
	for _, u := range demoUsers {
		hash, err := security.HashPassword(u.password, params)
		if err != nil {
			log.Fatalf("hash password for %s: %v", u.email, err)
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO users (name, email, phone, password_hash, role, is_verified)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			ON CONFLICT (email) DO UPDATE
			SET name = EXCLUDED.name, phone = EXCLUDED.phone,
			    password_hash = EXCLUDED.password_hash, role = EXCLUDED.role,
			    is_verified = TRUE
		`, u.name, u.email, u.phone, hash, u.role)
		if err != nil {
			log.Fatalf("seed user %s: %v", u.email, err)
		}
		fmt.Printf("✓ %s (%s)\n", u.email, u.role)
	}

	fmt.Println("Done.")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
