// Package middleware authenticates requests before they reach the quiz
// handlers.
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v3"
)

const (
	LocalUserID  = "userID"
	LocalAdminID = "adminID"
)

// RequireUser rejects requests without the X-User-ID header the gateway sets
// for an authenticated student.
func RequireUser() fiber.Handler {
	return func(c fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "User ID is required",
				"code":  "MISSING_USER_ID",
			})
		}
		c.Locals(LocalUserID, userID)
		return c.Next()
	}
}

// RequireAdmin accepts a bearer token carrying the quiz admin permission.
// Without a token it falls back to the gateway headers: an X-User-ID listed
// in adminIDs, or X-User-Permissions granting the permission.
func RequireAdmin(jwtService *JWTService, adminIDs []string) fiber.Handler {
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[strings.TrimSpace(id)] = true
	}

	return func(c fiber.Ctx) error {
		if authHeader := c.Get("Authorization"); authHeader != "" {
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := jwtService.VerifyToken(tokenString)
			if err != nil {
				log.Printf("Token validation failed: %v", err)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid token",
					"code":  "INVALID_TOKEN",
				})
			}
			if !claims.HasPermission(PermissionQuizAdmin) {
				return forbidden(c)
			}
			c.Locals(LocalAdminID, claims.Id)
			return c.Next()
		}

		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization token",
				"code":  "MISSING_TOKEN",
			})
		}
		permissions := strings.Split(c.Get("X-User-Permissions"), ",")
		if !admins[userID] && !hasPermission(permissions, PermissionQuizAdmin) {
			return forbidden(c)
		}
		c.Locals(LocalAdminID, userID)
		return c.Next()
	}
}

func forbidden(c fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": "You don't have enough permission",
		"code":  "FORBIDDEN",
	})
}

// AdminID returns the admin identity stored by RequireAdmin.
func AdminID(c fiber.Ctx) string {
	id, _ := c.Locals(LocalAdminID).(string)
	return id
}

// UserID returns the student identity stored by RequireUser.
func UserID(c fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
