package monitoring

import "github.com/ehr/healthmetrics/internal/domain/metrics"

// HealthStatus is the coarse triage tag for a subject.
type HealthStatus string

const (
	StatusHealthy    HealthStatus = "healthy"
	StatusMonitoring HealthStatus = "monitoring"
	StatusWarning    HealthStatus = "warning"
	StatusCritical   HealthStatus = "critical"
	StatusNoData     HealthStatus = "no_data"
)

// AllStatuses lists every tag in triage order, most severe last.
var AllStatuses = []HealthStatus{StatusNoData, StatusHealthy, StatusMonitoring, StatusWarning, StatusCritical}

// abnormalEscalation is the number of simultaneous warnings above which a
// subject moves from monitoring to warning.
const abnormalEscalation = 2

// SubjectHealthStatus is recomputed on every read and never stored.
type SubjectHealthStatus struct {
	Status        HealthStatus `json:"status"`
	MetricsCount  int          `json:"metrics_count"`
	AbnormalCount int          `json:"abnormal_count"`
	CriticalCount int          `json:"critical_count"`
}

// StatusFor classifies each latest value and derives the subject's tag.
// Any critical reading outranks any number of warnings; AbnormalCount
// excludes criticals.
func StatusFor(latest map[metrics.MetricType]float64, ranges metrics.RangeTable) SubjectHealthStatus {
	st := SubjectHealthStatus{MetricsCount: len(latest)}
	if len(latest) == 0 {
		st.Status = StatusNoData
		return st
	}
	for mt, v := range latest {
		switch ranges.Classify(mt, v) {
		case metrics.TierCritical:
			st.CriticalCount++
		case metrics.TierWarning:
			st.AbnormalCount++
		}
	}
	switch {
	case st.CriticalCount > 0:
		st.Status = StatusCritical
	case st.AbnormalCount > abnormalEscalation:
		st.Status = StatusWarning
	case st.AbnormalCount > 0:
		st.Status = StatusMonitoring
	default:
		st.Status = StatusHealthy
	}
	return st
}
