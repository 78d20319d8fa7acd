package auth

import (
	"testing"
	"time"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	ti := NewTokenIssuer(testSigningKey, "bedboard", 12*time.Hour).WithClock(func() time.Time { return now })

	tok, exp, err := ti.Issue(Principal{UserID: "u1", Email: "a@b.c", Name: "Ana", Role: RoleAdmin, Active: true})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(now.Add(12 * time.Hour)) {
		t.Errorf("unexpected expiry %s", exp)
	}

	p, err := ti.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UserID != "u1" || p.Role != RoleAdmin || !p.Active || p.Name != "Ana" {
		t.Errorf("unexpected principal %+v", p)
	}
	if !p.ExpiresAt.Equal(exp) {
		t.Errorf("expected expiry %s, got %s", exp, p.ExpiresAt)
	}
}

func TestTokenIssuer_UniqueTokenIDs(t *testing.T) {
	ti := newTestIssuer()
	a := issueTestToken(t, ti, Principal{UserID: "u1", Active: true})
	b := issueTestToken(t, ti, Principal{UserID: "u1", Active: true})
	pa, _ := ti.Parse(a)
	pb, _ := ti.Parse(b)
	if pa.TokenID == pb.TokenID {
		t.Error("expected distinct token ids per session")
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	ti := NewTokenIssuer(testSigningKey, "bedboard", time.Hour).WithClock(func() time.Time { return now })
	tok := issueTestToken(t, ti, Principal{UserID: "u1", Active: true})

	later := NewTokenIssuer(testSigningKey, "bedboard", time.Hour).WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	if _, err := later.Parse(tok); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenIssuer_WrongIssuer(t *testing.T) {
	tok := issueTestToken(t, NewTokenIssuer(testSigningKey, "someone-else", time.Hour), Principal{UserID: "u1", Active: true})
	if _, err := newTestIssuer().Parse(tok); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPassword(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Error("expected short password to be rejected")
	}

	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ok, err := CheckPassword(hash, "correct horse battery")
	if err != nil || !ok {
		t.Errorf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = CheckPassword(hash, "wrong password")
	if err != nil || ok {
		t.Errorf("expected mismatch without error, got ok=%v err=%v", ok, err)
	}
	if _, err := CheckPassword("not-a-hash", "x"); err == nil {
		t.Error("expected malformed hash to error")
	}
}
