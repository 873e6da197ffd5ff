package user

import (
	"strings"
	"testing"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("tr0ub4dor&3")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash should be PHC-encoded argon2id, got %q", hash)
	}

	ok, err := VerifyPassword("tr0ub4dor&3", hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("correct password should verify")
	}

	ok, err = VerifyPassword("tr0ub4dor&4", hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if ok {
		t.Error("wrong password should not verify")
	}
}

func TestPasswordHashesUseFreshSalts(t *testing.T) {
	first, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	second, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if first == second {
		t.Error("hashing the same password twice should produce different salts")
	}
}

func TestVerifyHonoursEncodedParameters(t *testing.T) {
	// A hash created with non-default (cheap) parameters must still verify:
	// the cost settings travel inside the PHC string, not the code.
	cheap := hashParams{memory: 8 * 1024, passes: 1, threads: 1, saltLen: 16, keyLen: 32}
	hash, err := hashWith(cheap, "migration-era password")
	if err != nil {
		t.Fatalf("hashWith() error = %v", err)
	}

	ok, err := VerifyPassword("migration-era password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("hash with non-default parameters should verify")
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"plaintext", "hunter2"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$a2V5"},
		{"missing fields", "$argon2id$v=19$m=65536,t=3,p=1"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=3,p=1$!!!$a2V5"},
		{"bad key encoding", "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := VerifyPassword("password", tt.hash); err == nil {
				t.Error("expected an error for a malformed hash")
			}
		})
	}
}
