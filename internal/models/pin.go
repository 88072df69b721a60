package models

import "time"

// UnlimitedAttempts is shown as "unlimited" in exports.
const UnlimitedAttempts = 999

type Pin struct {
	Code             string    `json:"pin" bson:"pin"`
	BatchID          string    `json:"batchId" bson:"batch_id"`
	Number           int       `json:"number" bson:"number"`
	Grade            int       `json:"grade" bson:"grade"`
	Topic            string    `json:"topic" bson:"topic"`
	CreatedBy        string    `json:"createdBy" bson:"created_by"`
	CreatedAt        time.Time `json:"createdAt" bson:"created_at"`
	ExpiresAt        time.Time `json:"expiresAt" bson:"expires_at"`
	Active           bool      `json:"active" bson:"active"`
	MultiUse         bool      `json:"multiUse" bson:"multi_use"`
	MaxAttempts      int       `json:"maxAttempts" bson:"max_attempts"`
	UsedCount        int       `json:"usedCount" bson:"used_count"`
	UsedBy           []string  `json:"usedBy" bson:"used_by"`
	QuestionCount    int       `json:"questionCount" bson:"question_count"`
	TimeLimitMinutes int       `json:"timeLimitMinutes" bson:"time_limit"`
}

// AttemptsBy counts how many recorded attempts belong to userID.
func (p *Pin) AttemptsBy(userID string) int {
	n := 0
	for _, u := range p.UsedBy {
		if u == userID {
			n++
		}
	}
	return n
}

func (p *Pin) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Status is the label used in batch exports.
func (p *Pin) Status(now time.Time) string {
	switch {
	case !p.Active:
		return "inactive"
	case p.IsExpired(now):
		return "expired"
	case p.UsedCount > 0:
		return "used"
	}
	return "active"
}

type PinBatch struct {
	ID               string    `json:"id" bson:"_id"`
	Grade            int       `json:"grade" bson:"grade"`
	Topic            string    `json:"topic" bson:"topic"`
	Count            int       `json:"count" bson:"count"`
	MultiUse         bool      `json:"multiUse" bson:"multi_use"`
	MaxAttempts      int       `json:"maxAttempts" bson:"max_attempts"`
	QuestionCount    int       `json:"questionCount" bson:"question_count"`
	TimeLimitMinutes int       `json:"timeLimitMinutes" bson:"time_limit"`
	CreatedBy        string    `json:"createdBy" bson:"created_by"`
	CreatedAt        time.Time `json:"createdAt" bson:"created_at"`
	ExpiresAt        time.Time `json:"expiresAt" bson:"expires_at"`
}

type PinBatchSummary struct {
	PinBatch `bson:",inline"`
	Used     int64 `json:"used"`
}

type PinStats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
	Used   int64 `json:"used"`
}

// Redemption carries the quiz parameters a valid PIN grants.
type Redemption struct {
	Code             string `json:"pin"`
	Grade            int    `json:"grade"`
	Topic            string `json:"topic"`
	QuestionCount    int    `json:"questionCount"`
	TimeLimitMinutes int    `json:"timeLimitMinutes"`
	CreatedBy        string `json:"-"`
}
