package service

import (
	"strings"
	"testing"
	"time"

	"github.com/ulma/ulma/internal/config"
	"github.com/ulma/ulma/internal/logging"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTRoundTrip(t *testing.T) {
	svc, err := NewJWTService(&config.JWTConfig{SecretKey: testSecret, AccessExpiry: time.Hour}, logging.Discard())
	if err != nil {
		t.Fatalf("new jwt service: %v", err)
	}

	pair, err := svc.GenerateAccessToken("alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if pair.TokenType != "Bearer" || pair.ExpiresIn != 3600 {
		t.Fatalf("unexpected token pair %+v", pair)
	}

	claims, err := svc.VerifyToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "alice" || claims.Subject != "alice" || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestJWTRejectsTamperedAndExpired(t *testing.T) {
	svc, _ := NewJWTService(&config.JWTConfig{SecretKey: testSecret, AccessExpiry: time.Hour}, logging.Discard())
	pair, _ := svc.GenerateAccessToken("alice")

	other, _ := NewJWTService(&config.JWTConfig{SecretKey: strings.Repeat("x", 32), AccessExpiry: time.Hour}, logging.Discard())
	if _, err := other.VerifyToken(pair.AccessToken); err == nil {
		t.Fatal("token signed with another key was accepted")
	}

	expired, _ := NewJWTService(&config.JWTConfig{SecretKey: testSecret, AccessExpiry: -time.Minute}, logging.Discard())
	stale, _ := expired.GenerateAccessToken("alice")
	if _, err := svc.VerifyToken(stale.AccessToken); err == nil {
		t.Fatal("expired token was accepted")
	}
}

func TestJWTRequiresLongSecret(t *testing.T) {
	if _, err := NewJWTService(&config.JWTConfig{SecretKey: "short"}, logging.Discard()); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}
