package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/opendossier/dossier/internal/workflow/model"
)

// NextStepUnlockAt computes the delay gate for the step at index within the
// ordered catalog. A step is delay-gated only when the step directly before
// it is a TIMER with a configured delay; the unlock moment is then the
// completion time of the step before the timer plus the delay.
//
// Returns (nil, false) when no gating applies. Returns (nil, true) when the
// step is gated but the pre-timer completion time is unknown: absence of data
// must never be interpreted as permission, so an unknown unlock blocks.
func NextStepUnlockAt(steps []model.Step, index int, instances map[uuid.UUID]model.StepInstance) (*time.Time, bool) {
	if index <= 0 || index >= len(steps) {
		return nil, false
	}
	timer := steps[index-1]
	if timer.Type != model.StepTypeTimer || timer.TimerDelayMinutes == nil {
		return nil, false
	}
	if index < 2 {
		// A timer with nothing before it has no completion time to count from.
		return nil, true
	}
	prior := steps[index-2]
	inst, exists := instances[prior.ID]
	if !exists || inst.CompletedAt == nil {
		return nil, true
	}
	unlockAt := inst.CompletedAt.Add(time.Duration(*timer.TimerDelayMinutes) * time.Minute)
	return &unlockAt, true
}

// TimerBlocked reports whether a gated step is still locked at the given
// moment. An unknown unlock time blocks.
func TimerBlocked(now time.Time, unlockAt *time.Time, gated bool) bool {
	if !gated {
		return false
	}
	if unlockAt == nil {
		return true
	}
	return now.Before(*unlockAt)
}
