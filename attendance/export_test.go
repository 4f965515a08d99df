package attendance

import (
	"agent-attendance/models"
	"time"
)

// SetEvaluate replaces the per-day evaluation of e.
func SetEvaluate(e *Engine, fn func(ev Evaluator, entry models.ScheduleEntry, day time.Time, env *models.Envelope, ov *models.Override) models.DayStatusRecord) {
	e.evaluate = fn
}
