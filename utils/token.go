package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// TokenMetadata struct to describe metadata in JWT.
type TokenMetadata struct {
	ID   uint
	Role string
	Otp  bool
	Exp  int64
}

var ErrNoToken = errors.New("no authenticated user")

// GenerateAccessToken mints an HS512 access token. Sessions are issued by the
// accounts service; this exists for tooling and tests.
func GenerateAccessToken(key string, id uint, role string, otp bool, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{}

	claims["id"] = strconv.FormatUint(uint64(id), 10)
	claims["role"] = role
	claims["otp"] = otp
	claims["exp"] = time.Now().Add(ttl).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	t, err := token.SignedString([]byte(key))
	if err != nil {
		return "", err
	}

	return t, nil
}

// CheckAndExtractTokenMetadata verifies a raw token, as sent on the socket
// handshake, and returns its claims.
func CheckAndExtractTokenMetadata(token string, key string) (*TokenMetadata, error) {
	t, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte(key), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return metadata(claims)
}

func metadata(claims jwt.MapClaims) (*TokenMetadata, error) {
	raw, _ := claims["id"].(string)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid id claim %q", raw)
	}

	m := &TokenMetadata{ID: uint(id)}
	m.Role, _ = claims["role"].(string)
	m.Otp, _ = claims["otp"].(bool)
	if exp, ok := claims["exp"].(float64); ok {
		m.Exp = int64(exp)
	}
	return m, nil
}

// Metadata reads the claims the JWT middleware stored on the request.
func Metadata(c *fiber.Ctx) (*TokenMetadata, error) {
	user, ok := c.Locals("user").(*jwt.Token)
	if !ok || user == nil {
		return nil, ErrNoToken
	}
	claims, ok := user.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrNoToken
	}
	return metadata(claims)
}

// UserID is the authenticated user's id.
func UserID(c *fiber.Ctx) (uint, error) {
	m, err := Metadata(c)
	if err != nil {
		return 0, err
	}
	return m.ID, nil
}
