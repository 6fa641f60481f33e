package usecase

import (
	"strings"
	"time"

	"signcoach/internal/domain"
	"signcoach/internal/ports"
)

// MatchPolicy decides whether a prediction is the target gesture.
type MatchPolicy struct {
	// Threshold is the minimum accepted score. Zero accepts any non-negative score.
	Threshold  float64
	Normalizer ports.LabelNormalizer
}

// Matches compares labels case-insensitively and checks the score threshold.
func (p MatchPolicy) Matches(target string, prediction domain.Prediction) bool {
	label := prediction.Label
	if p.Normalizer != nil {
		label = p.Normalizer.Normalize(label)
	}
	if strings.ToLower(strings.TrimSpace(label)) != strings.ToLower(strings.TrimSpace(target)) {
		return false
	}
	return prediction.Score >= p.Threshold
}

type matchFinalizer struct {
	events ports.EventSink
	now    func() time.Time
}

func newMatchFinalizer(events ports.EventSink) matchFinalizer {
	return matchFinalizer{events: events, now: time.Now}
}

// Finalize builds the match result and returns the notifications that
// announce it, in the order the UI expects them.
func (f matchFinalizer) Finalize(s *session, prediction domain.Prediction) (domain.MatchResult, []func()) {
	result := domain.MatchResult{
		SessionID:   s.id,
		TargetLabel: s.target,
		Category:    s.category,
		Prediction:  prediction,
		MatchedAt:   f.now(),
	}

	notices := []func(){
		func() { f.events.SessionMatched(result) },
		func() { f.events.SessionStateChanged(domain.SessionStateMatched, domain.SessionReasonMatched) },
	}
	if s.onMatched != nil {
		onMatched := s.onMatched
		notices = append(notices, func() { onMatched(result) })
	}
	return result, notices
}
