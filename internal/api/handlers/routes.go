package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/samancikme/fizika/internal/apperror"
	"github.com/samancikme/fizika/internal/middleware"
	"github.com/samancikme/fizika/internal/report"
)

// Routes holds the three route groups every handler registers on.
type Routes struct {
	Public  fiber.Router
	Student fiber.Router
	Admin   fiber.Router
}

func NewRoutes(app *fiber.App, jwtService *middleware.JWTService, adminIDs []string) Routes {
	return Routes{
		Public:  app.Group("/public/quiz"),
		Student: app.Group("/protected/quiz", middleware.RequireUser()),
		Admin:   app.Group("/protected/admin/quiz", middleware.RequireAdmin(jwtService, adminIDs)),
	}
}

var errorStatus = map[apperror.Code]int{
	apperror.CodeNotFound:          fiber.StatusNotFound,
	apperror.CodeExpired:           fiber.StatusGone,
	apperror.CodeInactive:          fiber.StatusForbidden,
	apperror.CodeAlreadyUsed:       fiber.StatusConflict,
	apperror.CodeAttemptsExhausted: fiber.StatusForbidden,
	apperror.CodeEmpty:             fiber.StatusNotFound,
	apperror.CodeInvalidInput:      fiber.StatusBadRequest,
	apperror.CodeStateConflict:     fiber.StatusConflict,
	apperror.CodeUnavailable:       fiber.StatusServiceUnavailable,
}

// respondError writes err as {"error", "code"} with the status its code maps
// to. Errors outside the taxonomy are reported as 500.
func respondError(c fiber.Ctx, err error) error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		log.Printf("Error handling %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
			"code":  "INTERNAL",
		})
	}

	status, ok := errorStatus[appErr.Code]
	if !ok {
		status = fiber.StatusInternalServerError
	}
	if appErr.Code == apperror.CodeUnavailable {
		log.Printf("Error handling %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}

func badRequest(c fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
		"code":  apperror.CodeInvalidInput,
	})
}

// queryInt parses an optional integer query parameter; missing means def.
func queryInt(c fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.InvalidInput("%s must be a number", key)
	}
	return n, nil
}

func renderers() map[string]report.Renderer {
	return map[string]report.Renderer{
		"pdf":  report.NewPDFRenderer(),
		"json": report.NewJSONRenderer(),
	}
}

func sendReport(c fiber.Ctx, r report.Renderer, name string, body []byte) error {
	c.Set("Content-Type", r.ContentType())
	c.Set("Content-Disposition", "attachment; filename="+name+"."+r.Extension())
	return c.Status(fiber.StatusOK).Send(body)
}
