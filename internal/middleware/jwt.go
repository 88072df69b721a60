package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	PermissionQuizAdmin = "quiz:admin"
	tokenIssuer         = "quiz-service"
)

type Claims struct {
	jwt.RegisteredClaims
	Id          string   `json:"id"`
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the claims grant perm. Any permission
// starting with "admin" grants everything.
func (c *Claims) HasPermission(perm string) bool {
	return hasPermission(c.Permissions, perm)
}

func hasPermission(granted []string, perm string) bool {
	for _, p := range granted {
		p = strings.TrimSpace(p)
		if p == perm || strings.HasPrefix(p, "admin") {
			return true
		}
	}
	return false
}

type JWTService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewJWTService(secret string, ttl time.Duration) *JWTService {
	return &JWTService{
		secretKey: []byte(secret),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (s *JWTService) GenerateToken(userID, username string, permissions []string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    tokenIssuer,
		},
		Id:          userID,
		Username:    username,
		Permissions: permissions,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("error generate token string: %w", err)
	}
	return signed, nil
}

func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secretKey, nil
		},
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
