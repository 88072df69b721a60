package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/samancikme/fizika/internal/service"
)

type ImageHandler struct {
	images *service.ImageService
}

func NewImageHandler(images *service.ImageService) *ImageHandler {
	return &ImageHandler{images: images}
}

func (h *ImageHandler) RegisterRoutes(r Routes) {
	r.Student.Get("/images/:id", h.GetImage)
}

func (h *ImageHandler) GetImage(c fiber.Ctx) error {
	data, err := h.images.Load(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	c.Set("Content-Type", http.DetectContentType(data))
	c.Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Send(data)
}
