package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenRoundTrip(t *testing.T) {
	s := NewJWTService("secret", time.Hour)

	token, err := s.GenerateToken("admin-1", "admin", []string{PermissionQuizAdmin})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	claims, err := s.VerifyToken(token)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if claims.Id != "admin-1" || claims.Username != "admin" {
		t.Errorf("Unexpected claims %+v", claims)
	}
	if !claims.HasPermission(PermissionQuizAdmin) {
		t.Errorf("Expected quiz admin permission")
	}

	other := NewJWTService("other-secret", time.Hour)
	if _, err := other.VerifyToken(token); err == nil {
		t.Errorf("Expected token signed with another secret to be rejected")
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.VerifyToken(token); err == nil {
		t.Errorf("Expected expired token to be rejected")
	}
}

func TestHasPermission(t *testing.T) {
	testCases := []struct {
		granted  []string
		expected bool
	}{
		{[]string{"quiz:admin"}, true},
		{[]string{" quiz:admin "}, true},
		{[]string{"admin"}, true},
		{[]string{"quiz:read"}, false},
		{nil, false},
		{[]string{""}, false},
	}

	for _, tc := range testCases {
		if got := hasPermission(tc.granted, PermissionQuizAdmin); got != tc.expected {
			t.Errorf("Expected hasPermission(%v) = %v, got %v", tc.granted, tc.expected, got)
		}
	}
}

func TestAdminLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	jwtService := NewJWTService("secret", time.Hour)
	auth := NewAdminAuthenticator("olimjon", string(hash), jwtService)

	token, err := auth.Login("olimjon", "s3cret")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := jwtService.VerifyToken(token); err != nil {
		t.Errorf("Expected issued token to verify, got %v", err)
	}

	if _, err := auth.Login("olimjon", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.Login("someone", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}

	disabled := NewAdminAuthenticator("olimjon", "", jwtService)
	if _, err := disabled.Login("olimjon", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected login to be disabled without a hash, got %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	jwtService := NewJWTService("secret", time.Hour)
	adminToken, _ := jwtService.GenerateToken("a1", "admin", []string{PermissionQuizAdmin})
	userToken, _ := jwtService.GenerateToken("u1", "student", []string{"quiz:read"})

	app := fiber.New()
	app.Use(RequireAdmin(jwtService, []string{"1001"}))
	app.Get("/admin", func(c fiber.Ctx) error {
		return c.SendString(AdminID(c))
	})

	testCases := []struct {
		name     string
		headers  map[string]string
		expected int
	}{
		{"admin token", map[string]string{"Authorization": "Bearer " + adminToken}, fiber.StatusOK},
		{"student token", map[string]string{"Authorization": "Bearer " + userToken}, fiber.StatusForbidden},
		{"garbage token", map[string]string{"Authorization": "Bearer nope"}, fiber.StatusUnauthorized},
		{"nothing", nil, fiber.StatusUnauthorized},
		{"listed admin id", map[string]string{"X-User-ID": "1001"}, fiber.StatusOK},
		{"gateway permission", map[string]string{"X-User-ID": "7", "X-User-Permissions": "quiz:read,quiz:admin"}, fiber.StatusOK},
		{"plain student", map[string]string{"X-User-ID": "7"}, fiber.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if resp.StatusCode != tc.expected {
				t.Errorf("Expected status %d, got %d", tc.expected, resp.StatusCode)
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	app := fiber.New()
	app.Use(RequireUser())
	app.Get("/me", func(c fiber.Ctx) error {
		return c.SendString(UserID(c))
	})

	req := httptest.NewRequest("GET", "/me", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", fiber.StatusUnauthorized, resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("X-User-ID", "42")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status %d, got %d", fiber.StatusOK, resp.StatusCode)
	}
}
