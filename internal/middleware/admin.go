package middleware

import (
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// AdminAuthenticator exchanges the configured admin credentials for a token.
type AdminAuthenticator struct {
	username     string
	passwordHash []byte
	jwt          *JWTService
}

func NewAdminAuthenticator(username, passwordHash string, jwtService *JWTService) *AdminAuthenticator {
	if passwordHash == "" {
		log.Printf("Warning: ADMIN_PASSWORD_HASH is not set, admin login is disabled")
	}
	return &AdminAuthenticator{
		username:     username,
		passwordHash: []byte(passwordHash),
		jwt:          jwtService,
	}
}

func (a *AdminAuthenticator) Login(username, password string) (string, error) {
	if len(a.passwordHash) == 0 || username != a.username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return a.jwt.GenerateToken(username, username, []string{PermissionQuizAdmin})
}
