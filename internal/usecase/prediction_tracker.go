package usecase

import (
	"sync"

	"signcoach/internal/domain"
)

// predictionTracker keeps the most recent prediction of a session.
type predictionTracker struct {
	mu    sync.Mutex
	last  *domain.Prediction
	count int
}

func newPredictionTracker() *predictionTracker {
	return &predictionTracker{}
}

func (t *predictionTracker) Add(prediction domain.Prediction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := prediction
	t.last = &p
	t.count++
}

func (t *predictionTracker) Last() (domain.Prediction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return domain.Prediction{}, false
	}
	return *t.last, true
}

func (t *predictionTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
