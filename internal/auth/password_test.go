package auth

import (
	"strings"
	"testing"
)

func TestPasswordVerify(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{"matching", "correct-horse", true},
		{"wrong", "correct-horsE", false},
		{"empty", "", false},
		{"prefix", "correct", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifyPassword(tt.password, hash)
			if err != nil {
				t.Fatalf("VerifyPassword() error = %v", err)
			}
			if ok != tt.want {
				t.Errorf("VerifyPassword(%q) = %v, want %v", tt.password, ok, tt.want)
			}
		})
	}
}

func TestHashPasswordEncoding(t *testing.T) {
	a, err := HashPassword("front-door")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	b, err := HashPassword("front-door")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if a == b {
		t.Error("hashes of the same password share a salt")
	}

	parts := strings.Split(a, "$")
	if len(parts) != 6 {
		t.Fatalf("got %d $-separated fields in %q, want 6", len(parts), a)
	}
	if got := strings.Join(parts[1:4], "$"); got != "argon2id$v=19$m=65536,t=3,p=1" {
		t.Errorf("header = %q", got)
	}
}

func TestVerifyPasswordRejectsMalformed(t *testing.T) {
	for _, hash := range []string{
		"",
		"hunter2",
		"$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=1",
		"$argon2id$v=x$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=1$!!$aGFzaA",
	} {
		if _, err := VerifyPassword("password", hash); err == nil {
			t.Errorf("VerifyPassword(%q) succeeded, want error", hash)
		}
	}
}

// The timing dummy must parse so unknown usernames still run Argon2id.
func TestDummyHashVerifies(t *testing.T) {
	ok, err := VerifyPassword("anything", dummyHash)
	if err != nil {
		t.Fatalf("VerifyPassword(dummyHash) error = %v", err)
	}
	if ok {
		t.Error("dummy hash matched a password")
	}
}
