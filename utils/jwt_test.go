package utils

import (
	"testing"
	"time"

	"github.com/imaliveapp/imalive/config"
)

func TestTokenRoundTrip(t *testing.T) {
	config.SetForTesting(config.AppConfig{JWTSecret: "test-secret"})

	token, err := GenerateToken(7, 7001, "alice", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 7 || claims.TelegramID != 7001 || claims.Username != "alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	config.SetForTesting(config.AppConfig{JWTSecret: "test-secret"})

	token, err := GenerateToken(7, 7001, "alice", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	config.SetForTesting(config.AppConfig{JWTSecret: "secret-a"})
	token, err := GenerateToken(7, 7001, "alice", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	config.SetForTesting(config.AppConfig{JWTSecret: "secret-b"})
	if _, err := ParseToken(token); err == nil {
		t.Fatal("token signed under a different secret accepted")
	}
	if _, err := ParseToken("not.a.token"); err == nil {
		t.Fatal("garbage token accepted")
	}
}
