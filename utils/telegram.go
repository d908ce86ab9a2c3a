package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInitDataSignature means the initData hash does not match the bot token.
	ErrInitDataSignature = errors.New("invalid telegram init data signature")
	// ErrInitDataExpired means auth_date is too old to trust.
	ErrInitDataExpired = errors.New("telegram init data expired")
)

// TelegramUser is the user object embedded in Mini-App init data.
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PhotoURL  string `json:"photo_url"`
	IsPremium bool   `json:"is_premium"`
}

const initDataMaxAge = 5 * time.Minute

// VerifyInitData validates a Telegram Mini-App initData string against the bot
// token and returns the embedded user. The check-string is the sorted
// key=value pairs excluding hash, signed with HMAC-SHA256 under the
// "WebAppData"-derived secret, per the Bot API contract.
func VerifyInitData(initData, botToken string, now time.Time) (*TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, ErrInitDataSignature
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, ErrInitDataSignature
	}

	pairs := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		pairs = append(pairs, key+"="+values.Get(key))
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(gotHash)) {
		return nil, ErrInitDataSignature
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil || now.Sub(time.Unix(authDate, 0)) > initDataMaxAge {
		return nil, ErrInitDataExpired
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, ErrInitDataSignature
	}
	return &user, nil
}
