package models

import (
	"fmt"
	"strings"
)

type AnswerKind string

const (
	AnswerChoice AnswerKind = "choice"
	AnswerText   AnswerKind = "text"
)

// Answer is either an option index or a free-text value, selected by Kind.
type Answer struct {
	Kind  AnswerKind `json:"kind" bson:"kind"`
	Index int        `json:"index" bson:"index"`
	Text  string     `json:"text,omitempty" bson:"text,omitempty"`
}

func ChoiceAnswer(index int) Answer {
	return Answer{Kind: AnswerChoice, Index: index}
}

func TextAnswer(value string) Answer {
	return Answer{Kind: AnswerText, Text: value}
}

// Matches reports whether a submitted answer equals the expected one.
// Text answers are compared after whitespace normalisation and case folding.
func (a Answer) Matches(expected Answer) bool {
	if a.Kind != expected.Kind {
		return false
	}
	switch a.Kind {
	case AnswerChoice:
		return a.Index == expected.Index
	case AnswerText:
		return strings.EqualFold(normalizeText(a.Text), normalizeText(expected.Text))
	}
	return false
}

// Label renders the answer for reports: a letter for choices, the value for text.
func (a Answer) Label() string {
	switch a.Kind {
	case AnswerChoice:
		return OptionLetter(a.Index)
	case AnswerText:
		return a.Text
	}
	return ""
}

func (a Answer) Validate() error {
	switch a.Kind {
	case AnswerChoice:
		if a.Index < 0 {
			return fmt.Errorf("choice index must not be negative")
		}
	case AnswerText:
		if normalizeText(a.Text) == "" {
			return fmt.Errorf("text answer must not be empty")
		}
	default:
		return fmt.Errorf("unknown answer kind %q", a.Kind)
	}
	return nil
}

// OptionLetter maps 0 to "A", 1 to "B" and so on.
func OptionLetter(index int) string {
	if index < 0 || index >= 26 {
		return fmt.Sprintf("#%d", index+1)
	}
	return string(rune('A' + index))
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
