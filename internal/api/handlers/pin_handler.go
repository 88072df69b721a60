package handlers

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/samancikme/fizika/internal/config"
	"github.com/samancikme/fizika/internal/middleware"
	"github.com/samancikme/fizika/internal/report"
	"github.com/samancikme/fizika/internal/service"
)

type PinHandler struct {
	pins      *service.PinService
	defaults  config.QuizConfig
	renderers map[string]report.Renderer
}

func NewPinHandler(pins *service.PinService, defaults config.QuizConfig) *PinHandler {
	return &PinHandler{
		pins:      pins,
		defaults:  defaults,
		renderers: renderers(),
	}
}

func (h *PinHandler) RegisterRoutes(r Routes) {
	r.Admin.Post("/pins", h.IssueBatch)
	r.Admin.Get("/pins/stats", h.Stats)
	r.Admin.Get("/pins/batches", h.ListBatches)
	r.Admin.Get("/pins/batches/:id", h.GetBatch)
	r.Admin.Get("/pins/batches/:id/export", h.ExportBatch)
	r.Admin.Post("/pins/:pin/reset", h.Reset)
	r.Admin.Post("/pins/:pin/deactivate", h.Deactivate)
}

// IssueBatch creates a batch; omitted question count, time limit and expiry
// take the configured defaults.
func (h *PinHandler) IssueBatch(c fiber.Ctx) error {
	var req service.BatchRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if req.QuestionCount == 0 {
		req.QuestionCount = h.defaults.DefaultQuestionCount
	}
	if req.TimeLimitMinutes == 0 {
		req.TimeLimitMinutes = h.defaults.DefaultTimeLimit
	}
	if req.ExpiryDays == 0 {
		req.ExpiryDays = h.defaults.PinExpiryDays
	}
	req.CreatedBy = middleware.AdminID(c)

	batch, pins, err := h.pins.IssueBatch(c.Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "PIN codes issued successfully",
		"data": fiber.Map{
			"batch": batch,
			"pins":  pins,
		},
	})
}

func (h *PinHandler) ListBatches(c fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return respondError(c, err)
	}
	batches, err := h.pins.ListBatches(c.Context(), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": batches})
}

func (h *PinHandler) GetBatch(c fiber.Ctx) error {
	batch, pins, err := h.pins.Batch(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"batch": batch,
			"pins":  pins,
		},
	})
}

func (h *PinHandler) ExportBatch(c fiber.Ctx) error {
	renderer, ok := h.renderers[c.Query("format", "pdf")]
	if !ok {
		return badRequest(c, "format must be pdf or json")
	}

	batch, pins, err := h.pins.Batch(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	body, err := renderer.RenderPinBatch(batch, pins, time.Now())
	if err != nil {
		return respondError(c, err)
	}
	return sendReport(c, renderer, "pins_"+batch.ID, body)
}

func (h *PinHandler) Reset(c fiber.Ctx) error {
	if err := h.pins.Reset(c.Context(), c.Params("pin")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "PIN reset"})
}

func (h *PinHandler) Deactivate(c fiber.Ctx) error {
	if err := h.pins.Deactivate(c.Context(), c.Params("pin")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "PIN deactivated"})
}

func (h *PinHandler) Stats(c fiber.Ctx) error {
	stats, err := h.pins.Stats(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": stats})
}
