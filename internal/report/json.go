package report

import (
	"encoding/json"
	"time"

	"github.com/samancikme/fizika/internal/models"
)

// JSONRenderer emits the same reports as machine-readable documents.
type JSONRenderer struct{}

func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{}
}

func (r *JSONRenderer) ContentType() string { return "application/json" }

func (r *JSONRenderer) Extension() string { return "json" }

type summaryRow struct {
	Number   int     `json:"number"`
	Name     string  `json:"name"`
	Grade    int     `json:"grade"`
	Topic    string  `json:"topic"`
	Score    float64 `json:"score"`
	Time     string  `json:"time"`
	Date     string  `json:"date"`
	ResultID string  `json:"result_id"`
}

type summaryDoc struct {
	Title        string       `json:"title"`
	Students     int          `json:"students"`
	AverageScore float64      `json:"average_score"`
	AverageTime  string       `json:"average_time"`
	Results      []summaryRow `json:"results"`
}

func (r *JSONRenderer) RenderSummary(title string, results []models.Result) ([]byte, error) {
	avg := average(results)
	doc := summaryDoc{
		Title:        title,
		Students:     len(results),
		AverageScore: avg.Score,
		AverageTime:  FormatDuration(avg.Seconds),
		Results:      make([]summaryRow, len(results)),
	}
	for i, res := range results {
		doc.Results[i] = summaryRow{
			Number:   i + 1,
			Name:     res.UserName,
			Grade:    res.Grade,
			Topic:    res.Topic,
			Score:    res.Score,
			Time:     FormatDuration(res.TimeSeconds),
			Date:     res.CompletedAt.Format(time.RFC3339),
			ResultID: res.ID,
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

type detailRow struct {
	Number    int    `json:"number"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Correct   string `json:"correct"`
	IsCorrect bool   `json:"is_correct"`
}

type detailedResult struct {
	summaryRow
	Correct   int         `json:"correct"`
	Total     int         `json:"total"`
	Questions []detailRow `json:"questions"`
}

type detailedDoc struct {
	Title        string           `json:"title"`
	AverageScore float64          `json:"average_score"`
	AverageTime  string           `json:"average_time"`
	Results      []detailedResult `json:"results"`
}

func (r *JSONRenderer) RenderDetailed(title string, results []models.Result) ([]byte, error) {
	avg := average(results)
	doc := detailedDoc{
		Title:        title,
		AverageScore: avg.Score,
		AverageTime:  FormatDuration(avg.Seconds),
		Results:      make([]detailedResult, len(results)),
	}
	for i, res := range results {
		entry := detailedResult{
			summaryRow: summaryRow{
				Number:   i + 1,
				Name:     res.UserName,
				Grade:    res.Grade,
				Topic:    res.Topic,
				Score:    res.Score,
				Time:     FormatDuration(res.TimeSeconds),
				Date:     res.CompletedAt.Format(time.RFC3339),
				ResultID: res.ID,
			},
			Correct:   res.Correct,
			Total:     res.Total,
			Questions: make([]detailRow, len(res.Details)),
		}
		for j, d := range res.Details {
			entry.Questions[j] = detailRow{
				Number:    j + 1,
				Question:  d.QuestionText,
				Answer:    answerLabel(d.UserAnswer),
				Correct:   d.CorrectAnswer.Label(),
				IsCorrect: d.IsCorrect,
			}
		}
		doc.Results[i] = entry
	}
	return json.MarshalIndent(doc, "", "  ")
}

type batchInfo struct {
	ID               string `json:"id"`
	Grade            int    `json:"grade"`
	Topic            string `json:"topic"`
	Count            int    `json:"count"`
	Attempts         string `json:"attempts"`
	QuestionCount    int    `json:"question_count"`
	TimeLimitMinutes int    `json:"time_limit"`
	CreatedAt        string `json:"created_at"`
	ExpiresAt        string `json:"expires_at"`
}

type batchPin struct {
	Number  int    `json:"number"`
	Pin     string `json:"pin"`
	Student string `json:"student"`
	Status  string `json:"status"`
}

type batchDoc struct {
	BatchInfo batchInfo  `json:"batch_info"`
	Pins      []batchPin `json:"pins"`
}

func (r *JSONRenderer) RenderPinBatch(batch *models.PinBatch, pins []models.Pin, now time.Time) ([]byte, error) {
	doc := batchDoc{
		BatchInfo: batchInfo{
			ID:               batch.ID,
			Grade:            batch.Grade,
			Topic:            batch.Topic,
			Count:            batch.Count,
			Attempts:         attemptsLabel(batch),
			QuestionCount:    batch.QuestionCount,
			TimeLimitMinutes: batch.TimeLimitMinutes,
			CreatedAt:        batch.CreatedAt.Format(time.RFC3339),
			ExpiresAt:        batch.ExpiresAt.Format(time.RFC3339),
		},
		Pins: make([]batchPin, len(pins)),
	}
	for i, p := range pins {
		doc.Pins[i] = batchPin{Number: p.Number, Pin: p.Code, Status: p.Status(now)}
	}
	return json.MarshalIndent(doc, "", "  ")
}
