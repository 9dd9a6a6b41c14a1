package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"opd/token-service/internal/models"
)

func TestEstimateFromSlotStart(t *testing.T) {
	estimator := NewEstimator(10, nil)
	slot := models.Slot{Date: "2026-03-02", StartTime: "09:00"}

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, start, estimator.Estimate(slot, 1))
	assert.Equal(t, start.Add(10*time.Minute), estimator.Estimate(slot, 2))
	assert.Equal(t, start.Add(50*time.Minute), estimator.Estimate(slot, 6))
}

func TestEstimateAddsSlotDelay(t *testing.T) {
	estimator := NewEstimator(15, nil)
	slot := models.Slot{
		Date:         "2026-03-02",
		StartTime:    "10:30",
		IsDelayed:    true,
		DelayMinutes: 20,
	}

	want := time.Date(2026, 3, 2, 10, 50, 0, 0, time.UTC).Add(2 * 15 * time.Minute)
	assert.Equal(t, want, estimator.Estimate(slot, 3))
}

func TestEstimateFallsBackOnBadSlotTimes(t *testing.T) {
	now := time.Date(2026, 3, 2, 11, 11, 0, 0, time.UTC)
	estimator := NewEstimator(10, func() time.Time { return now })

	slot := models.Slot{Date: "not-a-date", StartTime: "09:00"}
	assert.Equal(t, now, estimator.Estimate(slot, 4))

	slot = models.Slot{Date: "2026-03-02", StartTime: "9am"}
	assert.Equal(t, now, estimator.Estimate(slot, 1))
}
