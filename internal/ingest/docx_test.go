package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/samancikme/fizika/internal/models"
)

const testRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId5" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>
  <Relationship Id="rId6" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image2.png"/>
  <Relationship Id="rId9" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://example.org" TargetMode="External"/>
</Relationships>`

func para(text string) string {
	return `<w:p><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

func imagePara(text, relID string) string {
	return `<w:p><w:r><w:t>` + text + `</w:t></w:r><w:r><w:drawing><wp:inline><a:graphic><a:graphicData><pic:pic><pic:blipFill><a:blip r:embed="` + relID + `"/></pic:blipFill></pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
  xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"
  xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
  xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
  xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">
<w:body>` + body + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"word/document.xml":            document,
		"word/_rels/document.xml.rels": testRels,
		"word/media/image1.png":        "image-one",
		"word/media/image2.png":        "image-two",
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return buf.Bytes()
}

func TestParseDocx(t *testing.T) {
	body := imagePara("1. Jism 2 s da 10 m yo'l bosdi. Tezligi qancha?", "rId5") +
		para("A) 2 m/s") +
		para("B) 5 m/s") +
		para("C) 20 m/s") +
		para("Javob: B") +
		para("Tushuntirish: v = s / t") +
		para("2) Erkin tushish tezlanishi") +
		para("qiymatini yozing.") +
		imagePara("", "rId6") +
		para("javob: 9.8")

	questions, err := ParseDocx(buildDocx(t, body))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("Expected 2 questions, got %d", len(questions))
	}

	first := questions[0]
	if first.Number != 1 {
		t.Errorf("Expected number 1, got %d", first.Number)
	}
	if !strings.HasPrefix(first.Text, "Jism 2 s da") {
		t.Errorf("Unexpected text: %q", first.Text)
	}
	if len(first.Options) != 3 || first.Options[1] != "5 m/s" {
		t.Errorf("Unexpected options: %v", first.Options)
	}
	if first.Answer == nil || !first.Answer.Matches(models.ChoiceAnswer(1)) {
		t.Errorf("Expected answer B, got %+v", first.Answer)
	}
	if first.Explanation != "v = s / t" {
		t.Errorf("Unexpected explanation: %q", first.Explanation)
	}
	if len(first.Images) != 1 || string(first.Images[0]) != "image-one" {
		t.Errorf("Expected image-one attached, got %d images", len(first.Images))
	}

	second := questions[1]
	if second.Text != "Erkin tushish tezlanishi qiymatini yozing." {
		t.Errorf("Unexpected continued text: %q", second.Text)
	}
	if second.Answer == nil || second.Answer.Kind != models.AnswerText || second.Answer.Text != "9.8" {
		t.Errorf("Expected text answer 9.8, got %+v", second.Answer)
	}
	if len(second.Images) != 1 || string(second.Images[0]) != "image-two" {
		t.Errorf("Expected image-two attached to the second question")
	}
}

func TestParseAnswer(t *testing.T) {
	testCases := []struct {
		in   string
		want models.Answer
	}{
		{"A", models.ChoiceAnswer(0)},
		{" d ", models.ChoiceAnswer(3)},
		{"C)", models.ChoiceAnswer(2)},
		{"E", models.TextAnswer("E")},
		{"12 N", models.TextAnswer("12 N")},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got := parseAnswer(tc.in)
			if got.Kind != tc.want.Kind || !got.Matches(tc.want) {
				t.Errorf("Expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestParseParagraphsIgnoresLeadingText(t *testing.T) {
	questions := parseParagraphs([]paragraph{
		{Text: "Fizika 7-sinf test"},
		{Text: "A) stray option"},
		{Text: "1. Massa birligi?"},
		{Text: "a) kg"},
		{Text: "b. m"},
		{Text: "JAVOB: a"},
	})
	if len(questions) != 1 {
		t.Fatalf("Expected 1 question, got %d", len(questions))
	}
	if len(questions[0].Options) != 2 {
		t.Errorf("Expected 2 options, got %v", questions[0].Options)
	}
	if questions[0].Answer == nil || questions[0].Answer.Index != 0 {
		t.Errorf("Expected answer index 0, got %+v", questions[0].Answer)
	}
}

func TestParseDocxRejectsNonZip(t *testing.T) {
	_, err := ParseDocx([]byte("plain text"))
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Expected ErrInvalidDocument, got %v", err)
	}
}
