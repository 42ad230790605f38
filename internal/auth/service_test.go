package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spaceshq/spaces-server/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig)
}

func TestSignup_RejectsInvalidEmail(t *testing.T) {
	svc := newTestAuthService(t)

	if _, _, err := svc.Signup(context.Background(), "alice", "not-an-email", "password123"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestSignup_RejectsShortPassword(t *testing.T) {
	svc := newTestAuthService(t)

	if _, _, err := svc.Signup(context.Background(), "alice", "alice@acme.io", "12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestSignup_CreatesUserAndToken(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, token, err := svc.Signup(ctx, " alice ", "Alice@ACME.io", "password123")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if user.Name != "alice" {
		t.Fatalf("name = %q, want trimmed", user.Name)
	}
	if user.Email != "alice@acme.io" {
		t.Fatalf("email = %q, want lower-cased", user.Email)
	}
	if user.PasswordHash == "password123" {
		t.Fatal("password stored in plain text")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != user.Email {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSignup_RejectsDuplicateEmail(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, "alice", "alice@acme.io", "password123"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, _, err := svc.Signup(ctx, "alice2", "ALICE@acme.io", "password456"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	created, _, err := svc.Signup(ctx, "alice", "alice@acme.io", "password123")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	user, token, err := svc.Login(ctx, "alice@acme.io", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != created.ID || token == "" {
		t.Fatalf("unexpected login result: user=%+v token=%q", user, token)
	}

	if _, _, err := svc.Login(ctx, "alice@acme.io", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@acme.io", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestIdentifySocket_TokenWinsOverParam(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, token, err := svc.Signup(ctx, "alice", "alice@acme.io", "password123")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}

	// Token identity overrides a conflicting userId parameter.
	id, ok := svc.IdentifySocket(token, "999")
	if !ok || id != user.ID {
		t.Fatalf("IdentifySocket(token, 999) = (%d, %v), want (%d, true)", id, ok, user.ID)
	}

	// A bad token falls back to the parameter.
	id, ok = svc.IdentifySocket("garbage", "7")
	if !ok || id != 7 {
		t.Fatalf("IdentifySocket(garbage, 7) = (%d, %v)", id, ok)
	}

	// Nothing to go on: anonymous.
	if _, ok := svc.IdentifySocket("", ""); ok {
		t.Fatal("expected anonymous")
	}
	if _, ok := svc.IdentifySocket("", "not-a-number"); ok {
		t.Fatal("expected anonymous for malformed userId")
	}
}

func TestDomainOf(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{"alice@Acme.IO", "acme.io"},
		{"a@b@c.com", "c.com"},
		{"no-at-sign", ""},
		{"trailing@", ""},
	}
	for _, tc := range cases {
		if got := DomainOf(tc.email); got != tc.want {
			t.Fatalf("DomainOf(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}
