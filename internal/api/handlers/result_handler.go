package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v3"

	"github.com/samancikme/fizika/internal/middleware"
	"github.com/samancikme/fizika/internal/models"
	"github.com/samancikme/fizika/internal/report"
	"github.com/samancikme/fizika/internal/service"
)

type ResultHandler struct {
	results   *service.ResultService
	renderers map[string]report.Renderer
}

func NewResultHandler(results *service.ResultService) *ResultHandler {
	return &ResultHandler{results: results, renderers: renderers()}
}

func (h *ResultHandler) RegisterRoutes(r Routes) {
	r.Student.Get("/results/me", h.MyResults)

	r.Admin.Get("/results", h.Query)
	r.Admin.Get("/results/report", h.Report)
}

func (h *ResultHandler) MyResults(c fiber.Ctx) error {
	results, err := h.results.UserHistory(c.Context(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	for i := range results {
		results[i].Details = nil
	}
	return c.JSON(fiber.Map{"data": results})
}

func (h *ResultHandler) parseQuery(c fiber.Ctx) (models.ResultQuery, error) {
	grade, err := queryInt(c, "grade", 0)
	if err != nil {
		return models.ResultQuery{}, err
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return models.ResultQuery{}, err
	}
	since, err := h.results.Since(c.Query("period"))
	if err != nil {
		return models.ResultQuery{}, err
	}
	return models.ResultQuery{
		PinCode: c.Query("pin"),
		UserID:  c.Query("user"),
		Grade:   grade,
		Since:   since,
		Limit:   limit,
	}, nil
}

func (h *ResultHandler) Query(c fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return respondError(c, err)
	}
	results, err := h.results.Query(c.Context(), q)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": results, "count": len(results)})
}

// Report renders the filtered results. type is summary or detailed, format
// is pdf or json.
func (h *ResultHandler) Report(c fiber.Ctx) error {
	renderer, ok := h.renderers[c.Query("format", "pdf")]
	if !ok {
		return badRequest(c, "format must be pdf or json")
	}
	kind := c.Query("type", "summary")
	if kind != "summary" && kind != "detailed" {
		return badRequest(c, "type must be summary or detailed")
	}

	q, err := h.parseQuery(c)
	if err != nil {
		return respondError(c, err)
	}
	results, err := h.results.Query(c.Context(), q)
	if err != nil {
		return respondError(c, err)
	}

	title := reportTitle(q)
	var body []byte
	if kind == "detailed" {
		body, err = renderer.RenderDetailed(title, results)
	} else {
		body, err = renderer.RenderSummary(title, results)
	}
	if err != nil {
		return respondError(c, err)
	}
	return sendReport(c, renderer, "results_"+kind, body)
}

func reportTitle(q models.ResultQuery) string {
	switch {
	case q.PinCode != "":
		return fmt.Sprintf("Results for PIN %s", q.PinCode)
	case q.Grade != 0:
		return fmt.Sprintf("Results for grade %d", q.Grade)
	}
	return "Quiz results"
}
