// Package report renders result sheets and pin batch exports.
package report

import (
	"fmt"
	"math"
	"time"

	"github.com/samancikme/fizika/internal/models"
)

type Renderer interface {
	RenderSummary(title string, results []models.Result) ([]byte, error)
	RenderDetailed(title string, results []models.Result) ([]byte, error)
	RenderPinBatch(batch *models.PinBatch, pins []models.Pin, now time.Time) ([]byte, error)
	ContentType() string
	Extension() string
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds float64) string {
	total := int(math.Round(seconds))
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

type averages struct {
	Score   float64
	Seconds float64
}

func average(results []models.Result) averages {
	if len(results) == 0 {
		return averages{}
	}
	var score, seconds float64
	for _, r := range results {
		score += r.Score
		seconds += r.TimeSeconds
	}
	n := float64(len(results))
	return averages{
		Score:   math.Round(score/n*10) / 10,
		Seconds: seconds / n,
	}
}

func attemptsLabel(batch *models.PinBatch) string {
	if !batch.MultiUse {
		return "1"
	}
	if batch.MaxAttempts >= models.UnlimitedAttempts {
		return "unlimited"
	}
	return fmt.Sprintf("%d", batch.MaxAttempts)
}

func answerLabel(a *models.Answer) string {
	if a == nil {
		return "-"
	}
	return a.Label()
}
