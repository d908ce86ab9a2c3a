package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

const testBotToken = "12345:test-token"

// signInitData builds a signed initData query string the way the Telegram
// client does it, so the test exercises the real verification path.
func signInitData(t *testing.T, botToken string, fields map[string]string) string {
	t.Helper()
	pairs := make([]string, 0, len(fields))
	for k, v := range fields {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))
	hash := hex.EncodeToString(mac.Sum(nil))

	q := url.Values{}
	for k, v := range fields {
		q.Set(k, v)
	}
	q.Set("hash", hash)
	return q.Encode()
}

func validFields(now time.Time) map[string]string {
	return map[string]string{
		"auth_date": strconv.FormatInt(now.Unix(), 10),
		"query_id":  "AAF9tEwUAAAAAH20TBTqs0qG",
		"user":      `{"id":7001,"username":"alice","first_name":"Alice","is_premium":true}`,
	}
}

func TestVerifyInitDataValid(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	initData := signInitData(t, testBotToken, validFields(now))

	user, err := VerifyInitData(initData, testBotToken, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.ID != 7001 || user.Username != "alice" || !user.IsPremium {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestVerifyInitDataRejectsTamperedPayload(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	initData := signInitData(t, testBotToken, validFields(now))

	tampered := strings.Replace(initData, "7001", "7002", 1)
	if _, err := VerifyInitData(tampered, testBotToken, now); !errors.Is(err, ErrInitDataSignature) {
		t.Fatalf("expected signature error for tampered payload, got %v", err)
	}
}

func TestVerifyInitDataRejectsWrongToken(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	initData := signInitData(t, "99999:other-token", validFields(now))

	if _, err := VerifyInitData(initData, testBotToken, now); !errors.Is(err, ErrInitDataSignature) {
		t.Fatalf("expected signature error for foreign token, got %v", err)
	}
}

func TestVerifyInitDataRejectsStaleAuthDate(t *testing.T) {
	authTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	initData := signInitData(t, testBotToken, validFields(authTime))

	later := authTime.Add(10 * time.Minute)
	if _, err := VerifyInitData(initData, testBotToken, later); !errors.Is(err, ErrInitDataExpired) {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestVerifyInitDataRejectsMissingHash(t *testing.T) {
	if _, err := VerifyInitData("auth_date=123&user=%7B%7D", testBotToken, time.Now()); !errors.Is(err, ErrInitDataSignature) {
		t.Fatalf("expected signature error without hash, got %v", err)
	}
}
