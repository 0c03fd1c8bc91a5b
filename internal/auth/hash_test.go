package auth

import (
	"strings"
	"testing"
)

func TestHashToken_Format(t *testing.T) {
	t.Parallel()

	token := "tl_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"

	hash, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}

	// Verify PHC format: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
	if !strings.HasPrefix(hash, "$argon2id$v=") {
		t.Errorf("Hash should be in PHC format, got: %s", hash)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Errorf("Hash should have 6 parts, got: %d", len(parts))
	}

	if parts[1] != "argon2id" {
		t.Errorf("Expected argon2id algorithm, got: %s", parts[1])
	}
	if parts[2] != "v=19" {
		t.Errorf("Expected v=19, got: %s", parts[2])
	}
	if parts[3] != "m=65536,t=3,p=4" {
		t.Errorf("Expected m=65536,t=3,p=4, got: %s", parts[3])
	}
}

func TestHashToken_Uniqueness(t *testing.T) {
	t.Parallel()

	token := "tl_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"

	hash1, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}

	hash2, err := HashToken(token)
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}

	// Same token should produce different hashes (different salts)
	if hash1 == hash2 {
		t.Error("Same token should produce different hashes due to random salt")
	}

	match1, _ := VerifyToken(token, hash1)
	match2, _ := VerifyToken(token, hash2)

	if !match1 || !match2 {
		t.Error("Both hashes should verify correctly")
	}
}

func TestVerifyToken_Wrong(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("tl_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}

	match, err := VerifyToken("tl_abc123_00000000000000000000000000000000", hash)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if match {
		t.Error("Wrong token should not verify")
	}
}

func TestVerifyToken_MalformedHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not PHC", "plainhash"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"},
		{"missing sections", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA"},
		{"bad params", "$argon2id$v=19$garbage$c2FsdA$aGFzaA"},
		{"bad base64 salt", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			match, err := VerifyToken("anything", tt.hash)
			if err == nil {
				t.Error("VerifyToken should fail on malformed hash")
			}
			if match {
				t.Error("Malformed hash must never verify")
			}
		})
	}
}

func TestQuickHash_Deterministic(t *testing.T) {
	t.Parallel()

	a := QuickHash("tl_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b")
	b := QuickHash("tl_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b")

	if a != b {
		t.Error("QuickHash should be deterministic")
	}
	if len(a) != 32 {
		t.Errorf("QuickHash length = %d, want 32 hex chars", len(a))
	}
}

func TestQuickHash_DistinctInputs(t *testing.T) {
	t.Parallel()

	if QuickHash("token-a") == QuickHash("token-b") {
		t.Error("Different inputs should produce different hashes")
	}
}
