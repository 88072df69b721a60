package service

import (
	"math/rand/v2"
	"sync"

	"github.com/samancikme/fizika/internal/models"
)

// Shuffle builds a session snapshot of q. Multiple-choice options are put in
// a uniformly random order and the correct index is moved with its option.
// q itself is not modified.
func Shuffle(q models.Question, rng *rand.Rand) models.QuestionSnapshot {
	snapshot := models.QuestionSnapshot{
		QuestionID:    q.ID,
		Text:          q.Text,
		Kind:          q.Kind,
		CorrectAnswer: q.CorrectAnswer,
		Images:        append([]string(nil), q.Images...),
	}

	if q.Kind != models.KindMultipleChoice {
		snapshot.Options = append([]string(nil), q.Options...)
		return snapshot
	}

	perm := rng.Perm(len(q.Options))
	snapshot.Options = make([]string, len(q.Options))
	for newIndex, oldIndex := range perm {
		snapshot.Options[newIndex] = q.Options[oldIndex]
		if oldIndex == q.CorrectAnswer.Index {
			snapshot.CorrectAnswer = models.ChoiceAnswer(newIndex)
		}
	}
	return snapshot
}

// lockedRand serialises access to a *rand.Rand, which is not safe for
// concurrent use.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(rng *rand.Rand) *lockedRand {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &lockedRand{rng: rng}
}

func (r *lockedRand) with(fn func(rng *rand.Rand)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.rng)
}

// pickSubset returns min(n, len(ids)) ids chosen uniformly without
// replacement, via a partial Fisher-Yates shuffle of a copy.
func pickSubset(ids []string, n int, rng *rand.Rand) []string {
	if n > len(ids) {
		n = len(ids)
	}
	out := append([]string(nil), ids...)
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:n]
}
