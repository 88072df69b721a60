package models

import (
	"fmt"
	"strings"
	"time"
)

type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindFreeText       QuestionKind = "free_text"
)

type Difficulty string

const (
	DifficultyKnowledge   Difficulty = "knowledge"
	DifficultyApplication Difficulty = "application"
	DifficultyReasoning   Difficulty = "reasoning"
	DifficultyMixed       Difficulty = "mixed"
)

// ConcreteDifficulties are the levels a stored question may carry.
var ConcreteDifficulties = []Difficulty{DifficultyKnowledge, DifficultyApplication, DifficultyReasoning}

func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyKnowledge, DifficultyApplication, DifficultyReasoning, DifficultyMixed:
		return true
	}
	return false
}

var ValidGrades = []int{7, 8, 9}

func IsValidGrade(grade int) bool {
	for _, g := range ValidGrades {
		if g == grade {
			return true
		}
	}
	return false
}

// Question is an immutable bank entry.
type Question struct {
	ID            string       `json:"id" bson:"_id"`
	Text          string       `json:"text" bson:"text"`
	Options       []string     `json:"options" bson:"options"`
	CorrectAnswer Answer       `json:"correctAnswer" bson:"correct_answer"`
	Kind          QuestionKind `json:"kind" bson:"kind"`
	Images        []string     `json:"images,omitempty" bson:"images,omitempty"`
	Grade         int          `json:"grade" bson:"grade"`
	Topic         string       `json:"topic" bson:"topic"`
	Difficulty    Difficulty   `json:"difficulty" bson:"difficulty"`
	Explanation   string       `json:"explanation,omitempty" bson:"explanation,omitempty"`
	CreatedAt     time.Time    `json:"createdAt" bson:"created_at"`
}

func (q *Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question text is required")
	}
	if !IsValidGrade(q.Grade) {
		return fmt.Errorf("invalid grade %d", q.Grade)
	}
	if strings.TrimSpace(q.Topic) == "" {
		return fmt.Errorf("topic is required")
	}
	if q.Difficulty == DifficultyMixed || !q.Difficulty.IsValid() {
		return fmt.Errorf("invalid difficulty %q", q.Difficulty)
	}

	switch q.Kind {
	case KindMultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("multiple choice question needs at least 2 options")
		}
		if q.CorrectAnswer.Kind != AnswerChoice {
			return fmt.Errorf("multiple choice question needs a choice answer")
		}
		if q.CorrectAnswer.Index < 0 || q.CorrectAnswer.Index >= len(q.Options) {
			return fmt.Errorf("correct answer index %d out of range", q.CorrectAnswer.Index)
		}
	case KindFreeText:
		if len(q.Options) != 0 {
			return fmt.Errorf("free text question must not have options")
		}
		if q.CorrectAnswer.Kind != AnswerText {
			return fmt.Errorf("free text question needs a text answer")
		}
		if err := q.CorrectAnswer.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown question kind %q", q.Kind)
	}
	return nil
}

// QuestionSnapshot is the per-session copy of a question. Its options may be
// reordered and CorrectAnswer always refers to the snapshot's own order.
type QuestionSnapshot struct {
	QuestionID    string       `json:"questionId"`
	Text          string       `json:"text"`
	Options       []string     `json:"options"`
	CorrectAnswer Answer       `json:"correctAnswer"`
	Kind          QuestionKind `json:"kind"`
	Images        []string     `json:"images,omitempty"`
}

// ParsedQuestion is what document ingestion produces before grade, topic and
// difficulty are assigned by the uploader.
type ParsedQuestion struct {
	Number      int
	Text        string
	Options     []string
	Answer      *Answer
	Explanation string
	Images      [][]byte
}

type QuestionStats struct {
	Total        int64                `json:"total"`
	ByGrade      map[int]int64        `json:"byGrade"`
	ByDifficulty map[Difficulty]int64 `json:"byDifficulty"`
}
