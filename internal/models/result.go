package models

import "time"

type CompletionType string

const (
	CompletionFinished    CompletionType = "finished"
	CompletionForced      CompletionType = "forced"
	CompletionTimeExpired CompletionType = "time_expired"
)

type ResultDetail struct {
	QuestionText  string   `json:"questionText" bson:"question_text"`
	Options       []string `json:"options,omitempty" bson:"options,omitempty"`
	UserAnswer    *Answer  `json:"userAnswer,omitempty" bson:"user_answer,omitempty"`
	CorrectAnswer Answer   `json:"correctAnswer" bson:"correct_answer"`
	IsCorrect     bool     `json:"isCorrect" bson:"is_correct"`
}

// Result is written once per finished session and never updated.
type Result struct {
	ID          string         `json:"id" bson:"_id"`
	SessionID   string         `json:"sessionId" bson:"session_id"`
	UserID      string         `json:"userId" bson:"user_id"`
	UserName    string         `json:"userName" bson:"user_name"`
	PinCode     string         `json:"pin" bson:"pin"`
	Grade       int            `json:"grade" bson:"grade"`
	Topic       string         `json:"topic" bson:"topic"`
	Score       float64        `json:"score" bson:"score"`
	Correct     int            `json:"correct" bson:"correct"`
	Total       int            `json:"total" bson:"total"`
	TimeSeconds float64        `json:"timeSeconds" bson:"time_seconds"`
	Completion  CompletionType `json:"completion" bson:"completion"`
	CompletedAt time.Time      `json:"completedAt" bson:"completed_at"`
	Details     []ResultDetail `json:"details" bson:"details"`
}

type ResultQuery struct {
	PinCode string
	UserID  string
	Grade   int
	Since   time.Time
	Limit   int
}

type ResultAggregate struct {
	CountByGrade      map[int]int64        `json:"countByGrade"`
	CountByDifficulty map[Difficulty]int64 `json:"countByDifficulty"`
	TopResults        []Result             `json:"topResults"`
	TotalResults      int64                `json:"totalResults"`
	TotalQuestions    int64                `json:"totalQuestions"`
}
