package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "secret1" {
		t.Fatal("Hash() returned the plaintext password")
	}

	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{name: "correct password", password: "secret1", want: true},
		{name: "wrong password", password: "secret2", want: false},
		{name: "empty password", password: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasher.Verify(tt.password, hash); got != tt.want {
				t.Errorf("Verify(%q) = %v, want %v", tt.password, got, tt.want)
			}
		})
	}
}

func TestPasswordHasher_VerifyMissing(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	for _, password := range []string{"", "secret1", "no account matches this login"} {
		if hasher.VerifyMissing(password) {
			t.Errorf("VerifyMissing(%q) = true, want false", password)
		}
	}

	cost, err := bcrypt.Cost(hasher.dummy)
	if err != nil {
		t.Fatalf("bcrypt.Cost() error = %v", err)
	}
	if cost != bcrypt.MinCost {
		t.Errorf("dummy hash cost = %v, want %v", cost, bcrypt.MinCost)
	}
}

func TestNewPasswordHasher_CostFallback(t *testing.T) {
	tests := []struct {
		name string
		cost int
		want int
	}{
		{name: "minimum", cost: bcrypt.MinCost, want: bcrypt.MinCost},
		{name: "too low", cost: 1, want: DefaultBcryptCost},
		{name: "too high", cost: 40, want: DefaultBcryptCost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewPasswordHasher(tt.cost).cost; got != tt.want {
				t.Errorf("cost = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "6 characters exactly", password: "123456", wantErr: false},
		{name: "5 characters", password: "12345", wantErr: true},
		{name: "empty password", password: "", wantErr: true},
		{name: "72 bytes exactly", password: strings.Repeat("a", 72), wantErr: false},
		{name: "73 bytes", password: strings.Repeat("a", 73), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := map[string]string{}
			validatePassword(fields, "password", tt.password)
			if got := len(fields) > 0; got != tt.wantErr {
				t.Errorf("validatePassword(%q) failed = %v, want %v (%v)", tt.password, got, tt.wantErr, fields)
			}
		})
	}
}
