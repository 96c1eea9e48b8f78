package security

import "testing"

func TestDefaultTokenGenerator(t *testing.T) {
	gen := DefaultTokenGenerator{}

	token, hash, err := gen.New()
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if token == "" || hash == "" {
		t.Fatalf("expected non-empty token and hash")
	}
	if hash != HashToken(token) {
		t.Fatalf("hash does not match token")
	}

	token2, _, err := gen.New()
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if token == token2 {
		t.Fatalf("expected distinct tokens")
	}
}

func TestNewNumericCode(t *testing.T) {
	code, err := NewNumericCode(6)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in code: %q", code)
		}
	}
}
