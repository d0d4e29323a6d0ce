package monitoring

import (
	"time"

	"github.com/ehr/healthmetrics/internal/platform/apperror"
)

// Window is the closed interval a rollup covers.
type Window struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Period string    `json:"period"`
}

const (
	PeriodDay    = "day"
	PeriodWeek   = "week"
	PeriodMonth  = "month"
	PeriodYear   = "year"
	PeriodCustom = "custom"

	DefaultPeriod = PeriodWeek

	maxWindow = 366 * 24 * time.Hour
)

var periodDays = map[string]int{
	PeriodDay:   1,
	PeriodWeek:  7,
	PeriodMonth: 30,
	PeriodYear:  365,
}

// ResolveWindow turns a period token or an explicit start/end into a window
// ending at now. Explicit bounds win over the period and must both be given.
func ResolveWindow(period string, start, end *time.Time, now time.Time) (Window, error) {
	if start != nil || end != nil {
		if start == nil || end == nil {
			return Window{}, apperror.Invalid("start and end must be given together")
		}
		if end.Before(*start) {
			return Window{}, apperror.Invalid("end must not be before start")
		}
		if end.Sub(*start) > maxWindow {
			return Window{}, apperror.Invalid("window may not exceed %d days", int(maxWindow.Hours()/24))
		}
		return Window{Start: start.UTC(), End: end.UTC(), Period: PeriodCustom}, nil
	}

	if period == "" {
		period = DefaultPeriod
	}
	days, ok := periodDays[period]
	if !ok {
		return Window{}, apperror.Invalid("unknown period %q", period)
	}
	now = now.UTC()
	return Window{Start: now.AddDate(0, 0, -days), End: now, Period: period}, nil
}
