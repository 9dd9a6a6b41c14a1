package queue

import (
	"fmt"

	"opd/token-service/internal/models"
)

// seqSpan bounds the arrival tie-break so it can never bridge the gap
// between two adjacent type weights.
const seqSpan = int64(1_000_000_000)

type Weights struct {
	Emergency int
	Priority  int
	FollowUp  int
	Online    int
	WalkIn    int
}

func DefaultWeights() Weights {
	return Weights{
		Emergency: 1000,
		Priority:  500,
		FollowUp:  300,
		Online:    200,
		WalkIn:    100,
	}
}

func (w Weights) For(tokenType string) (int, bool) {
	switch tokenType {
	case models.TypeEmergency:
		return w.Emergency, true
	case models.TypePriority:
		return w.Priority, true
	case models.TypeFollowUp:
		return w.FollowUp, true
	case models.TypeOnline:
		return w.Online, true
	case models.TypeWalkIn:
		return w.WalkIn, true
	default:
		return 0, false
	}
}

// Score ranks a token for queue ordering. Higher scores serve first.
// Subtracting the arrival sequence keeps ordering within a type strictly
// first-come-first-served, and two tokens can never tie because the
// sequence never repeats.
func Score(weight int, arrivalSeq int64) int64 {
	return int64(weight)*seqSpan - arrivalSeq
}

// FormatTokenNumber renders a queue position as the printed token
// number. Positions past 999 widen the field rather than wrap.
func FormatTokenNumber(position int) string {
	return fmt.Sprintf("T%03d", position)
}
