// Package ingest turns uploaded .docx question sheets into parsed questions.
//
// Expected layout, one paragraph per line:
//
//	1. Question text (images may sit in this paragraph or the next)
//	A) first option
//	B) second option
//	Javob: B
//	Tushuntirish: optional explanation
//
// An answer that is not an option letter makes the question free text.
package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/samancikme/fizika/internal/models"
)

const (
	nsWordML        = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsDrawingML     = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsRelationships = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

	documentPath = "word/document.xml"
	relsPath     = "word/_rels/document.xml.rels"
)

var (
	ErrInvalidDocument = errors.New("invalid docx document")

	questionPattern = regexp.MustCompile(`^(\d+)[.)]\s*`)
	optionPattern   = regexp.MustCompile(`^[A-Da-d][.)]\s*`)
	answerPrefixes  = []string{"javob:", "answer:"}
	explainPrefixes = []string{"tushuntirish:", "explanation:"}
)

type paragraph struct {
	Text   string
	Images [][]byte
}

// ParseDocx reads the main document part of a .docx file.
func ParseDocx(data []byte) ([]models.ParsedQuestion, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	docFile, ok := files[documentPath]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidDocument, documentPath)
	}

	targets := map[string]string{}
	if relFile, ok := files[relsPath]; ok {
		raw, err := readZipFile(relFile)
		if err != nil {
			return nil, err
		}
		if targets, err = parseRelationships(raw); err != nil {
			return nil, err
		}
	}

	loadImage := func(relID string) []byte {
		target, ok := targets[relID]
		if !ok {
			return nil
		}
		f, ok := files[target]
		if !ok {
			return nil
		}
		raw, err := readZipFile(f)
		if err != nil {
			return nil
		}
		return raw
	}

	raw, err := readZipFile(docFile)
	if err != nil {
		return nil, err
	}
	paragraphs, err := readParagraphs(raw, loadImage)
	if err != nil {
		return nil, err
	}
	return parseParagraphs(paragraphs), nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrInvalidDocument, f.Name, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidDocument, f.Name, err)
	}
	return raw, nil
}

// parseRelationships maps relationship ids to zip paths of internal targets.
func parseRelationships(raw []byte) (map[string]string, error) {
	var rels struct {
		Items []struct {
			ID         string `xml:"Id,attr"`
			Target     string `xml:"Target,attr"`
			TargetMode string `xml:"TargetMode,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(raw, &rels); err != nil {
		return nil, fmt.Errorf("%w: relationships: %v", ErrInvalidDocument, err)
	}

	out := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		if strings.EqualFold(r.TargetMode, "External") {
			continue
		}
		target := r.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("word", target)
		}
		out[r.ID] = target
	}
	return out, nil
}

// readParagraphs streams document.xml and collects the text and embedded
// images of every top-level paragraph. Paragraphs nested in text boxes are
// folded into their enclosing paragraph.
func readParagraphs(raw []byte, loadImage func(relID string) []byte) ([]paragraph, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))

	var (
		out   []paragraph
		cur   paragraph
		text  strings.Builder
		depth int
		inT   bool
	)

	addImage := func(relID string) {
		if depth == 0 || relID == "" {
			return
		}
		if img := loadImage(relID); img != nil {
			cur.Images = append(cur.Images, img)
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: document: %v", ErrInvalidDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Space == nsWordML && t.Name.Local == "p":
				if depth == 0 {
					cur = paragraph{}
					text.Reset()
				}
				depth++
			case t.Name.Space == nsWordML && t.Name.Local == "t":
				inT = true
			case t.Name.Space == nsWordML && (t.Name.Local == "tab" || t.Name.Local == "br"):
				if depth > 0 {
					text.WriteByte(' ')
				}
			case t.Name.Space == nsDrawingML && t.Name.Local == "blip":
				addImage(attr(t, nsRelationships, "embed"))
			case t.Name.Local == "imagedata":
				addImage(attr(t, nsRelationships, "id"))
			}
		case xml.EndElement:
			switch {
			case t.Name.Space == nsWordML && t.Name.Local == "p":
				depth--
				if depth == 0 {
					cur.Text = strings.TrimSpace(text.String())
					out = append(out, cur)
				} else if depth > 0 {
					text.WriteByte(' ')
				}
			case t.Name.Space == nsWordML && t.Name.Local == "t":
				inT = false
			}
		case xml.CharData:
			if inT && depth > 0 {
				text.Write(t)
			}
		}
	}
	return out, nil
}

func attr(e xml.StartElement, space, local string) string {
	for _, a := range e.Attr {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// parseParagraphs applies the line rules. Questions with no text are
// dropped; validation of options and answers is left to the caller.
func parseParagraphs(paragraphs []paragraph) []models.ParsedQuestion {
	var (
		out []models.ParsedQuestion
		cur *models.ParsedQuestion
	)

	flush := func() {
		if cur != nil && strings.TrimSpace(cur.Text) != "" {
			out = append(out, *cur)
		}
		cur = nil
	}

	for _, p := range paragraphs {
		text := p.Text

		if m := questionPattern.FindStringSubmatch(text); m != nil {
			flush()
			cur = &models.ParsedQuestion{
				Text:   strings.TrimSpace(text[len(m[0]):]),
				Images: p.Images,
			}
			cur.Number, _ = strconv.Atoi(m[1])
			continue
		}
		if cur == nil {
			continue
		}

		lower := strings.ToLower(text)
		switch {
		case optionPattern.MatchString(text):
			cur.Options = append(cur.Options, strings.TrimSpace(optionPattern.ReplaceAllString(text, "")))
		case hasAnyPrefix(lower, answerPrefixes):
			answer := parseAnswer(afterColon(text))
			cur.Answer = &answer
		case hasAnyPrefix(lower, explainPrefixes):
			cur.Explanation = afterColon(text)
		case text != "":
			cur.Text += " " + text
			cur.Images = append(cur.Images, p.Images...)
		default:
			cur.Images = append(cur.Images, p.Images...)
		}
	}
	flush()
	return out
}

// parseAnswer maps a single option letter (optionally followed by ")" or
// ".") to a choice, anything else to a text answer.
func parseAnswer(value string) models.Answer {
	letter := strings.TrimRight(strings.TrimSpace(value), ").")
	if len(letter) == 1 {
		c := strings.ToUpper(letter)[0]
		if c >= 'A' && c <= 'D' {
			return models.ChoiceAnswer(int(c - 'A'))
		}
	}
	return models.TextAnswer(strings.TrimSpace(value))
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func afterColon(s string) string {
	if i := strings.Index(s, ":"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return ""
}
