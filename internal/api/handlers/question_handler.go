package handlers

import (
	"io"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/samancikme/fizika/internal/models"
	"github.com/samancikme/fizika/internal/service"
)

const maxDocumentSize = 20 << 20

type QuestionHandler struct {
	questions *service.QuestionService
}

func NewQuestionHandler(questions *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questions: questions}
}

func (h *QuestionHandler) RegisterRoutes(r Routes) {
	r.Student.Get("/topics", h.Topics)

	r.Admin.Post("/questions", h.Add)
	r.Admin.Post("/questions/import", h.Import)
	r.Admin.Get("/questions/count", h.Count)
	r.Admin.Delete("/questions", h.Delete)
}

func (h *QuestionHandler) Topics(c fiber.Ctx) error {
	grade, err := queryInt(c, "grade", 0)
	if err != nil {
		return respondError(c, err)
	}
	topics, err := h.questions.DistinctTopics(c.Context(), grade)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": topics})
}

func (h *QuestionHandler) Add(c fiber.Ctx) error {
	var q models.Question
	if err := c.Bind().Body(&q); err != nil {
		return badRequest(c, "Invalid request format")
	}
	q.ID = ""
	if err := h.questions.Add(c.Context(), &q); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Question added",
		"data":    q,
	})
}

// Import takes a multipart form with the .docx in "file" plus grade, topic
// and difficulty fields.
func (h *QuestionHandler) Import(c fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "No file provided")
	}
	if fileHeader.Size > maxDocumentSize {
		return badRequest(c, "File is too large")
	}
	grade, err := strconv.Atoi(c.FormValue("grade"))
	if err != nil {
		return badRequest(c, "grade must be a number")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "Failed to read file")
	}
	defer file.Close()
	document, err := io.ReadAll(file)
	if err != nil {
		return badRequest(c, "Failed to read file")
	}

	report, err := h.questions.Import(c.Context(), service.ImportRequest{
		Document:   document,
		Grade:      grade,
		Topic:      c.FormValue("topic"),
		Difficulty: models.Difficulty(c.FormValue("difficulty", string(models.DifficultyMixed))),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Questions imported",
		"data":    report,
	})
}

func (h *QuestionHandler) Count(c fiber.Ctx) error {
	grade, err := queryInt(c, "grade", 0)
	if err != nil {
		return respondError(c, err)
	}
	n, err := h.questions.Count(c.Context(), grade, c.Query("topic"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"count": n}})
}

// Delete removes questions by topic, by grade, or all of them when all=true.
func (h *QuestionHandler) Delete(c fiber.Ctx) error {
	grade, err := queryInt(c, "grade", 0)
	if err != nil {
		return respondError(c, err)
	}
	topic := c.Query("topic")

	var deleted int64
	switch {
	case topic != "":
		deleted, err = h.questions.DeleteByTopic(c.Context(), grade, topic)
	case grade != 0:
		deleted, err = h.questions.DeleteByGrade(c.Context(), grade)
	case c.Query("all") == "true":
		deleted, err = h.questions.DeleteAll(c.Context())
	default:
		return badRequest(c, "Specify grade, topic or all=true")
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": deleted}})
}
