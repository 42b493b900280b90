package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NewToken выпускает JWT для пользователя; sub - строковый id пользователя.
// Токены выпускает сервис авторизации, здесь функция нужна для служебных клиентов и тестов.
func NewToken(userID, email string, ttl time.Duration, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is not set")
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
