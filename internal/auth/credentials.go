package auth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cwrk-planet/chatsync/pkg/errs"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials это bearer-токен сессии и то, что клиенту нужно знать о его владельце.
type Credentials struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
}

func (c Credentials) Bearer() string { return "Bearer " + c.Token }

func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Check падает с ErrUnauthorized на пустом или просроченном токене, до любого сетевого вызова.
func (c Credentials) Check(now time.Time) error {
	if c.Token == "" {
		return fmt.Errorf("%w: missing credential", errs.ErrUnauthorized)
	}
	if c.Expired(now) {
		return fmt.Errorf("%w: credential expired at %s", errs.ErrUnauthorized, c.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// Inspect разбирает JWT без проверки подписи: подпись проверяет бэкенд,
// клиенту нужны только sub (id пользователя) и exp.
func Inspect(token string) (Credentials, error) {
	token = strings.TrimSpace(token)
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Credentials{}, fmt.Errorf("%w: missing credential", errs.ErrUnauthorized)
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Credentials{}, fmt.Errorf("%w: malformed credential: %v", errs.ErrUnauthorized, err)
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return Credentials{}, fmt.Errorf("%w: invalid subject %q", errs.ErrUnauthorized, claims.Subject)
	}

	creds := Credentials{Token: token, UserID: uid}
	if claims.ExpiresAt != nil {
		creds.ExpiresAt = claims.ExpiresAt.Time
	}
	return creds, nil
}

// Load берёт токен из конфига, иначе из файла, сохранённого при логине.
func Load(token, tokenFile string) (Credentials, error) {
	if strings.TrimSpace(token) == "" && tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return Credentials{}, fmt.Errorf("read token file: %w", err)
		}
		token = string(data)
	}
	return Inspect(token)
}
