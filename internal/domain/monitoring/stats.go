package monitoring

import (
	"math"
	"sort"
	"time"

	"github.com/ehr/healthmetrics/internal/domain/metrics"
)

// Stats are descriptive statistics over one list of values. Median and
// quartiles use nearest-rank indexing into the sorted list: the median of an
// even-length list is the upper-middle element. Dashboards depend on these
// exact values.
type Stats struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Median  float64 `json:"median"`
	P25     float64 `json:"p25"`
	P75     float64 `json:"p75"`
	StdDev  float64 `json:"std_dev"`
}

// Describe returns statistics for values, or false when values is empty.
// The input is not modified. Average and StdDev are rounded to 2 decimals;
// StdDev is the population deviation.
func Describe(values []float64) (Stats, bool) {
	n := len(values)
	if n == 0 {
		return Stats{}, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range sorted {
		d := v - mean
		sq += d * d
	}

	return Stats{
		Average: round2(mean),
		Min:     sorted[0],
		Max:     sorted[n-1],
		Median:  sorted[n/2],
		P25:     sorted[int(math.Floor(float64(n)*0.25))],
		P75:     sorted[int(math.Floor(float64(n)*0.75))],
		StdDev:  round2(math.Sqrt(sq / float64(n))),
	}, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Bucket aggregates every sample of one metric type on one UTC day.
type Bucket struct {
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// DayKey is the bucket key for t: its UTC calendar date.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// BucketByDay groups samples by metric type and UTC day.
func BucketByDay(samples []*metrics.Sample) map[metrics.MetricType]map[string]Bucket {
	type acc struct {
		sum, min, max float64
		count         int
	}
	accs := make(map[metrics.MetricType]map[string]*acc)
	for _, s := range samples {
		days, ok := accs[s.MetricType]
		if !ok {
			days = make(map[string]*acc)
			accs[s.MetricType] = days
		}
		key := DayKey(s.Timestamp)
		a, ok := days[key]
		if !ok {
			a = &acc{min: s.Value, max: s.Value}
			days[key] = a
		}
		a.sum += s.Value
		a.count++
		a.min = math.Min(a.min, s.Value)
		a.max = math.Max(a.max, s.Value)
	}

	out := make(map[metrics.MetricType]map[string]Bucket, len(accs))
	for mt, days := range accs {
		series := make(map[string]Bucket, len(days))
		for key, a := range days {
			series[key] = Bucket{
				Avg:   round2(a.sum / float64(a.count)),
				Min:   a.min,
				Max:   a.max,
				Count: a.count,
			}
		}
		out[mt] = series
	}
	return out
}
