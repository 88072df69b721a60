package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/samancikme/fizika/internal/models"
	"github.com/samancikme/fizika/internal/service"
)

const (
	pdfFont       = "Helvetica"
	rowHeight     = 7.0
	dateLayout    = "02.01.2006 15:04"
	dayDateLayout = "02.01.2006"
)

type rgb struct{ r, g, b int }

var bandColours = map[string]rgb{
	"excellent":    {0, 150, 0},
	"good":         {0, 100, 200},
	"satisfactory": {220, 140, 0},
	"poor":         {200, 0, 0},
}

// PDFRenderer produces A4 sheets with the core Helvetica font. Text is
// converted to cp1252, which covers Uzbek Latin.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) ContentType() string { return "application/pdf" }

func (r *PDFRenderer) Extension() string { return "pdf" }

type column struct {
	title string
	width float64
	align string
}

type sheet struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func newSheet(orientation, title string) *sheet {
	pdf := fpdf.New(orientation, "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	s := &sheet{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.SetFont(pdfFont, "B", 16)
	pdf.CellFormat(0, 10, s.tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(4)
	return s
}

func (s *sheet) header(columns []column) {
	s.pdf.SetFont(pdfFont, "B", 10)
	s.pdf.SetFillColor(220, 220, 220)
	s.pdf.SetTextColor(0, 0, 0)
	for _, c := range columns {
		s.pdf.CellFormat(c.width, rowHeight, s.tr(c.title), "1", 0, "C", true, 0, "")
	}
	s.pdf.Ln(-1)
	s.pdf.SetFont(pdfFont, "", 10)
}

func (s *sheet) cell(c column, text string) {
	s.pdf.CellFormat(c.width, rowHeight, s.tr(text), "1", 0, c.align, false, 0, "")
}

func (s *sheet) line(style string, size float64, text string) {
	s.pdf.SetFont(pdfFont, style, size)
	s.pdf.SetTextColor(0, 0, 0)
	s.pdf.CellFormat(0, rowHeight, s.tr(text), "", 1, "L", false, 0, "")
}

func (s *sheet) bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) RenderSummary(title string, results []models.Result) ([]byte, error) {
	s := newSheet("L", title)
	columns := []column{
		{"#", 10, "C"},
		{"Name", 70, "L"},
		{"Grade", 18, "C"},
		{"Topic", 60, "L"},
		{"Score", 25, "C"},
		{"Time", 22, "C"},
		{"Date", 40, "C"},
	}
	s.header(columns)

	for i, res := range results {
		s.cell(columns[0], fmt.Sprintf("%d", i+1))
		s.cell(columns[1], res.UserName)
		s.cell(columns[2], fmt.Sprintf("%d", res.Grade))
		s.cell(columns[3], res.Topic)

		colour := bandColours[service.ScoreBand(res.Score)]
		s.pdf.SetTextColor(colour.r, colour.g, colour.b)
		s.cell(columns[4], fmt.Sprintf("%.1f%%", res.Score))
		s.pdf.SetTextColor(0, 0, 0)

		s.cell(columns[5], FormatDuration(res.TimeSeconds))
		s.cell(columns[6], res.CompletedAt.Format(dateLayout))
		s.pdf.Ln(-1)
	}

	avg := average(results)
	s.pdf.Ln(4)
	s.line("B", 11, fmt.Sprintf("Students: %d   Average score: %.1f%%   Average time: %s", len(results), avg.Score, FormatDuration(avg.Seconds)))
	return s.bytes()
}

func (r *PDFRenderer) RenderDetailed(title string, results []models.Result) ([]byte, error) {
	s := newSheet("P", title)
	columns := []column{
		{"#", 12, "C"},
		{"Question", 108, "L"},
		{"Answer", 25, "C"},
		{"Correct", 25, "C"},
		{"Mark", 20, "C"},
	}

	for i, res := range results {
		if i > 0 {
			s.pdf.Ln(6)
		}
		s.line("B", 12, fmt.Sprintf("%d. %s (grade %d, %s)", i+1, res.UserName, res.Grade, res.Topic))
		s.line("", 10, fmt.Sprintf("Score: %.1f%%  (%d/%d)   Time: %s   Date: %s",
			res.Score, res.Correct, res.Total, FormatDuration(res.TimeSeconds), res.CompletedAt.Format(dateLayout)))
		s.header(columns)

		for j, d := range res.Details {
			s.cell(columns[0], fmt.Sprintf("%d", j+1))
			s.cell(columns[1], truncate(d.QuestionText, 60))
			s.cell(columns[2], answerLabel(d.UserAnswer))
			s.cell(columns[3], d.CorrectAnswer.Label())
			mark := "-"
			if d.IsCorrect {
				mark = "+"
				s.pdf.SetTextColor(0, 150, 0)
			} else {
				s.pdf.SetTextColor(200, 0, 0)
			}
			s.cell(columns[4], mark)
			s.pdf.SetTextColor(0, 0, 0)
			s.pdf.Ln(-1)
		}
	}

	avg := average(results)
	s.pdf.Ln(6)
	s.line("B", 11, fmt.Sprintf("Average score: %.1f%%   Average time: %s", avg.Score, FormatDuration(avg.Seconds)))
	return s.bytes()
}

func (r *PDFRenderer) RenderPinBatch(batch *models.PinBatch, pins []models.Pin, now time.Time) ([]byte, error) {
	s := newSheet("P", fmt.Sprintf("PIN codes: grade %d, %s", batch.Grade, batch.Topic))
	s.line("", 10, fmt.Sprintf("Created: %s   Expires: %s   Attempts: %s",
		batch.CreatedAt.Format(dayDateLayout), batch.ExpiresAt.Format(dayDateLayout), attemptsLabel(batch)))
	s.line("", 10, fmt.Sprintf("Questions: %d   Time limit: %d min", batch.QuestionCount, batch.TimeLimitMinutes))
	s.pdf.Ln(2)

	columns := []column{
		{"#", 15, "C"},
		{"PIN", 45, "C"},
		{"Student", 90, "L"},
		{"Status", 30, "C"},
	}
	s.header(columns)
	s.pdf.SetFont("Courier", "B", 12)
	for _, p := range pins {
		s.cell(columns[0], fmt.Sprintf("%d", p.Number))
		s.cell(columns[1], p.Code)
		s.cell(columns[2], "")
		s.cell(columns[3], p.Status(now))
		s.pdf.Ln(-1)
	}
	return s.bytes()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
