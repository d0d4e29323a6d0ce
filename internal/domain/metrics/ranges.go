package metrics

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Tier is the classifier's severity for a single reading.
type Tier string

const (
	TierNormal   Tier = "normal"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
)

// RangeEntry holds the normal band for a metric type and optional critical
// bounds outside it.
type RangeEntry struct {
	Min         float64  `mapstructure:"min" json:"min"`
	Max         float64  `mapstructure:"max" json:"max"`
	CriticalMin *float64 `mapstructure:"critical_min" json:"critical_min,omitempty"`
	CriticalMax *float64 `mapstructure:"critical_max" json:"critical_max,omitempty"`
}

// Classify places v in a tier. Critical bounds are checked before the normal
// band.
func (e RangeEntry) Classify(v float64) Tier {
	if e.CriticalMin != nil && v < *e.CriticalMin {
		return TierCritical
	}
	if e.CriticalMax != nil && v > *e.CriticalMax {
		return TierCritical
	}
	if v < e.Min || v > e.Max {
		return TierWarning
	}
	return TierNormal
}

func (e RangeEntry) validate() error {
	if e.Min > e.Max {
		return fmt.Errorf("min %.2f exceeds max %.2f", e.Min, e.Max)
	}
	if e.CriticalMin != nil && *e.CriticalMin > e.Min {
		return fmt.Errorf("critical_min %.2f is inside the normal band", *e.CriticalMin)
	}
	if e.CriticalMax != nil && *e.CriticalMax < e.Max {
		return fmt.Errorf("critical_max %.2f is inside the normal band", *e.CriticalMax)
	}
	return nil
}

// RangeTable maps metric types to thresholds. It is built once at startup
// and only read afterwards.
type RangeTable map[MetricType]RangeEntry

func bound(v float64) *float64 { return &v }

// DefaultRangeTable returns the built-in thresholds. Types without an entry,
// such as steps, have no opinion and always classify normal.
//
// heart_rate uses a critical low of 50 bpm rather than 40 so that a reading
// of 45 classifies critical; with 40 it would only be a warning.
func DefaultRangeTable() RangeTable {
	return RangeTable{
		HeartRate:              {Min: 60, Max: 100, CriticalMin: bound(50), CriticalMax: bound(150)},
		BloodPressureSystolic:  {Min: 90, Max: 120, CriticalMin: bound(70), CriticalMax: bound(180)},
		BloodPressureDiastolic: {Min: 60, Max: 80, CriticalMin: bound(40), CriticalMax: bound(120)},
		OxygenSaturation:       {Min: 95, Max: 100, CriticalMin: bound(90)},
		RespiratoryRate:        {Min: 12, Max: 20, CriticalMin: bound(8), CriticalMax: bound(30)},
		BodyTemperature:        {Min: 36.1, Max: 37.2, CriticalMin: bound(35), CriticalMax: bound(39.5)},
		Glucose:                {Min: 70, Max: 100, CriticalMin: bound(50), CriticalMax: bound(200)},
		BMI:                    {Min: 18.5, Max: 24.9},
		SleepDuration:          {Min: 7, Max: 9},
		StressLevel:            {Min: 0, Max: 6},
	}
}

// Lookup returns the entry for mt, if one is defined.
func (t RangeTable) Lookup(mt MetricType) (RangeEntry, bool) {
	e, ok := t[mt]
	return e, ok
}

// Classify returns the tier for a reading. Unknown or unbounded metric types
// are normal.
func (t RangeTable) Classify(mt MetricType, v float64) Tier {
	e, ok := t[mt]
	if !ok {
		return TierNormal
	}
	return e.Classify(v)
}

// LoadRangeTable starts from the defaults and overlays the "ranges" section
// of a YAML or JSON file. An empty path returns the defaults.
//
//	ranges:
//	  heart_rate: {min: 55, max: 100, critical_min: 40, critical_max: 150}
func LoadRangeTable(path string) (RangeTable, error) {
	table := DefaultRangeTable()
	if path == "" {
		return table, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read range table %s: %w", path, err)
	}

	var raw map[string]RangeEntry
	if err := v.UnmarshalKey("ranges", &raw); err != nil {
		return nil, fmt.Errorf("decode range table %s: %w", path, err)
	}

	for name, entry := range raw {
		mt, err := ParseMetricType(strings.ToLower(name))
		if err != nil {
			return nil, fmt.Errorf("range table %s: %w", path, err)
		}
		if err := entry.validate(); err != nil {
			return nil, fmt.Errorf("range table %s: %s: %w", path, mt, err)
		}
		table[mt] = entry
	}
	return table, nil
}
