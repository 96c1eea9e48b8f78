package security

import (
	"strings"
	"testing"
)

func TestPasswordHashVerify(t *testing.T) {
	params := Argon2Params{Memory: 16 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	hash, err := HashPassword("s3cret-pass", params)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	ok, err := VerifyPassword("s3cret-pass", hash)
	if err != nil {
		t.Fatalf("verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected password to verify")
	}

	ok, err = VerifyPassword("wrong", hash)
	if err != nil {
		t.Fatalf("verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected password to fail")
	}
}

func TestPasswordHashesAreSalted(t *testing.T) {
	params := Argon2Params{Memory: 16 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	h1, err := HashPassword("same-password", params)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	h2, err := HashPassword("same-password", params)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected distinct hashes for the same password")
	}
	if !strings.HasPrefix(h1, "$argon2id$") {
		t.Fatalf("unexpected encoding: %s", h1)
	}
}

func TestVerifyPasswordMalformedEncoding(t *testing.T) {
	if _, err := VerifyPassword("anything", "not-an-argon2-hash"); err == nil {
		t.Fatalf("expected error for malformed hash")
	}
}
