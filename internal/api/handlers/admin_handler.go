package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/samancikme/fizika/internal/middleware"
	"github.com/samancikme/fizika/internal/service"
)

// AdminHandler serves admin login and the dashboard statistics.
type AdminHandler struct {
	auth    *middleware.AdminAuthenticator
	results *service.ResultService
	pins    *service.PinService
	images  *service.ImageService
}

func NewAdminHandler(auth *middleware.AdminAuthenticator, results *service.ResultService, pins *service.PinService, images *service.ImageService) *AdminHandler {
	return &AdminHandler{auth: auth, results: results, pins: pins, images: images}
}

func (h *AdminHandler) RegisterRoutes(r Routes) {
	r.Public.Post("/admin/login", h.Login)
	r.Admin.Get("/stats", h.Stats)
}

func (h *AdminHandler) Login(c fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	token, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, middleware.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid username or password",
				"code":  "INVALID_CREDENTIALS",
			})
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"token": token})
}

func (h *AdminHandler) Stats(c fiber.Ctx) error {
	grade, err := queryInt(c, "grade", 0)
	if err != nil {
		return respondError(c, err)
	}
	aggregate, err := h.results.Aggregate(c.Context(), grade)
	if err != nil {
		return respondError(c, err)
	}
	pinStats, err := h.pins.Stats(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	images, err := h.images.Count(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"results": aggregate,
			"pins":    pinStats,
			"images":  images,
		},
	})
}
