package queue

import (
	"time"

	"opd/token-service/internal/models"
)

const slotTimeLayout = "2006-01-02 15:04"

// Estimator projects when a queue position should reach the doctor,
// from the slot's scheduled start plus any posted delay.
type Estimator struct {
	avgConsultation time.Duration
	now             func() time.Time
}

func NewEstimator(avgConsultationMinutes int, now func() time.Time) *Estimator {
	if now == nil {
		now = time.Now
	}
	return &Estimator{
		avgConsultation: time.Duration(avgConsultationMinutes) * time.Minute,
		now:             now,
	}
}

// Estimate returns slot start + (position-1) consultations, shifted by
// the slot's delay when one is posted. A slot whose date or start time
// does not parse falls back to the current time; a broken display
// field must not block allocation.
func (e *Estimator) Estimate(slot models.Slot, position int) time.Time {
	start, err := time.ParseInLocation(slotTimeLayout, slot.Date+" "+slot.StartTime, time.UTC)
	if err != nil {
		return e.now().UTC()
	}
	estimated := start.Add(time.Duration(position-1) * e.avgConsultation)
	if slot.IsDelayed {
		estimated = estimated.Add(time.Duration(slot.DelayMinutes) * time.Minute)
	}
	return estimated
}
