package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func hs256Manager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     ttl,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "walletd",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestCreateAndParseHS256(t *testing.T) {
	m := hs256Manager(t, time.Minute)

	token, err := m.CreateAccess("u1", "s1", time.Now())
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "s1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestCreateAndParseEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.CreateAccess("u2", "s2", time.Now())
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.UID != "u2" || claims.SID != "s2" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseExpired(t *testing.T) {
	m := hs256Manager(t, time.Minute)

	token, err := m.CreateAccess("u1", "s1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseWrongKey(t *testing.T) {
	m := hs256Manager(t, time.Minute)
	token, err := m.CreateAccess("u1", "s1", time.Now())
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	other, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:        "walletd",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if _, err := other.Parse(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("k")}); err == nil {
		t.Fatal("expected error for missing TTL")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected error for missing key")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: "rs512"}); err == nil {
		t.Fatal("expected error for unsupported method")
	}
}
