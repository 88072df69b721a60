package handlers

import (
	"github.com/gofiber/fiber/v3"

	"github.com/samancikme/fizika/internal/middleware"
	"github.com/samancikme/fizika/internal/models"
	"github.com/samancikme/fizika/internal/service"
)

// SessionHandler exposes the student quiz flow.
type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) RegisterRoutes(r Routes) {
	r.Student.Post("/session/begin", h.Begin)
	r.Student.Post("/pin/redeem", h.RedeemPin)
	r.Student.Post("/session/start", h.Start)
	r.Student.Get("/session", h.Status)
	r.Student.Post("/session/answer", h.SubmitAnswer)
	r.Student.Post("/session/navigate", h.Navigate)
	r.Student.Post("/session/finish", h.Finish)
	r.Student.Post("/session/cancel", h.Cancel)

	r.Admin.Post("/sessions/:userId/abandon", h.ForceAbandon)
}

func (h *SessionHandler) Begin(c fiber.Ctx) error {
	status, err := h.sessions.Begin(c.Context(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": status})
}

func (h *SessionHandler) RedeemPin(c fiber.Ctx) error {
	var req struct {
		Pin string `json:"pin"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	redemption, err := h.sessions.RedeemPin(c.Context(), middleware.UserID(c), req.Pin)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"data":      redemption,
		"next_step": "Send your full name to /session/start",
	})
}

func (h *SessionHandler) Start(c fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	view, err := h.sessions.StartSession(c.Context(), middleware.UserID(c), req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": view})
}

func (h *SessionHandler) Status(c fiber.Ctx) error {
	status, err := h.sessions.Status(c.Context(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": status})
}

func (h *SessionHandler) SubmitAnswer(c fiber.Ctx) error {
	var req struct {
		SessionID string        `json:"sessionId"`
		Index     int           `json:"index"`
		Answer    models.Answer `json:"answer"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	result, err := h.sessions.SubmitAnswer(c.Context(), middleware.UserID(c), req.SessionID, req.Index, req.Answer)
	if result != nil {
		return c.JSON(withWarning(fiber.Map{
			"message": "Time is up, the quiz was finished",
			"result":  result,
		}, err))
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Answer saved"})
}

func (h *SessionHandler) Navigate(c fiber.Ctx) error {
	var req struct {
		SessionID string `json:"sessionId"`
		Target    string `json:"target"`
		Index     int    `json:"index"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	nav, err := h.sessions.Navigate(c.Context(), middleware.UserID(c), req.SessionID, service.Target{
		Kind:  service.TargetKind(req.Target),
		Index: req.Index,
	})
	if nav == nil {
		return respondError(c, err)
	}
	return c.JSON(withWarning(fiber.Map{"data": nav}, err))
}

func (h *SessionHandler) Finish(c fiber.Ctx) error {
	var req struct {
		SessionID string `json:"sessionId"`
		Force     bool   `json:"force"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	finish, err := h.sessions.Finish(c.Context(), middleware.UserID(c), req.SessionID, req.Force)
	if finish == nil {
		return respondError(c, err)
	}
	if finish.NeedsConfirmation {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"data":    finish,
			"message": "Some questions are unanswered, send force=true to finish anyway",
		})
	}
	return c.JSON(withWarning(fiber.Map{"data": finish}, err))
}

// withWarning attaches a failure that happened after the result was saved.
func withWarning(body fiber.Map, err error) fiber.Map {
	if err != nil {
		body["warning"] = err.Error()
	}
	return body
}

func (h *SessionHandler) Cancel(c fiber.Ctx) error {
	if err := h.sessions.Abandon(c.Context(), middleware.UserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Quiz cancelled"})
}

func (h *SessionHandler) ForceAbandon(c fiber.Ctx) error {
	if err := h.sessions.Abandon(c.Context(), c.Params("userId")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Session abandoned"})
}
