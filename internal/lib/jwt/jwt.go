package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ownerClaim = "uid"

var ErrInvalidToken = errors.New("invalid token")

// NewToken выпускает токен владельца галерей, подписанный secret
func NewToken(ownerID uuid.UUID, secret string, duration time.Duration) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims[ownerClaim] = ownerID.String()
	claims["exp"] = time.Now().Add(duration).Unix()

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// OwnerID достаёт id владельца из токена, проверенного echo-jwt
func OwnerID(token *jwt.Token) (uuid.UUID, error) {
	if token == nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}

	raw, ok := claims[ownerClaim].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, ownerClaim)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return id, nil
}
