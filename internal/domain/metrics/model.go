package metrics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/healthmetrics/internal/platform/apperror"
)

var (
	ErrInvalidMetricType = fmt.Errorf("%w: unknown metric type", apperror.ErrInvalidInput)
	ErrInvalidValue      = fmt.Errorf("%w: value must be a finite number", apperror.ErrInvalidInput)
	ErrInvalidSource     = fmt.Errorf("%w: unknown sample source", apperror.ErrInvalidInput)
)

// MetricType is an enumerated category of measurement.
type MetricType string

const (
	HeartRate              MetricType = "heart_rate"
	BloodPressureSystolic  MetricType = "blood_pressure_systolic"
	BloodPressureDiastolic MetricType = "blood_pressure_diastolic"
	OxygenSaturation       MetricType = "oxygen_saturation"
	RespiratoryRate        MetricType = "respiratory_rate"
	BodyTemperature        MetricType = "body_temperature"
	Glucose                MetricType = "glucose"
	Weight                 MetricType = "weight"
	BMI                    MetricType = "bmi"
	Steps                  MetricType = "steps"
	ActiveMinutes          MetricType = "active_minutes"
	CaloriesBurned         MetricType = "calories_burned"
	Distance               MetricType = "distance"
	SleepDuration          MetricType = "sleep_duration"
	StressLevel            MetricType = "stress_level"
	Mood                   MetricType = "mood"
	WaterIntake            MetricType = "water_intake"
)

type Category string

const (
	CategoryVital    Category = "vital"
	CategoryActivity Category = "activity"
	CategoryWellness Category = "wellness"
)

// Definition describes a metric type in the catalog.
type Definition struct {
	Type        MetricType `json:"type"`
	Category    Category   `json:"category"`
	DisplayName string     `json:"display_name"`
	DefaultUnit string     `json:"default_unit"`
}

var catalog = map[MetricType]Definition{
	HeartRate:              {HeartRate, CategoryVital, "Heart Rate", "bpm"},
	BloodPressureSystolic:  {BloodPressureSystolic, CategoryVital, "Systolic Blood Pressure", "mmHg"},
	BloodPressureDiastolic: {BloodPressureDiastolic, CategoryVital, "Diastolic Blood Pressure", "mmHg"},
	OxygenSaturation:       {OxygenSaturation, CategoryVital, "Oxygen Saturation", "%"},
	RespiratoryRate:        {RespiratoryRate, CategoryVital, "Respiratory Rate", "breaths/min"},
	BodyTemperature:        {BodyTemperature, CategoryVital, "Body Temperature", "°C"},
	Glucose:                {Glucose, CategoryVital, "Blood Glucose", "mg/dL"},
	Weight:                 {Weight, CategoryVital, "Weight", "kg"},
	BMI:                    {BMI, CategoryVital, "Body Mass Index", "kg/m²"},
	Steps:                  {Steps, CategoryActivity, "Steps", "steps"},
	ActiveMinutes:          {ActiveMinutes, CategoryActivity, "Active Minutes", "min"},
	CaloriesBurned:         {CaloriesBurned, CategoryActivity, "Calories Burned", "kcal"},
	Distance:               {Distance, CategoryActivity, "Distance", "km"},
	SleepDuration:          {SleepDuration, CategoryWellness, "Sleep Duration", "hours"},
	StressLevel:            {StressLevel, CategoryWellness, "Stress Level", "score"},
	Mood:                   {Mood, CategoryWellness, "Mood", "score"},
	WaterIntake:            {WaterIntake, CategoryWellness, "Water Intake", "L"},
}

// ParseMetricType validates s against the catalog.
func ParseMetricType(s string) (MetricType, error) {
	mt := MetricType(s)
	if _, ok := catalog[mt]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMetricType, s)
	}
	return mt, nil
}

// Definition returns the catalog entry for t.
func (t MetricType) Definition() (Definition, bool) {
	d, ok := catalog[t]
	return d, ok
}

// DisplayName falls back to the raw type for anything outside the catalog.
func (t MetricType) DisplayName() string {
	if d, ok := catalog[t]; ok {
		return d.DisplayName
	}
	return string(t)
}

// Catalog returns every known metric definition ordered by type.
func Catalog() []Definition {
	defs := make([]Definition, 0, len(catalog))
	for _, d := range catalog {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Type < defs[j].Type })
	return defs
}

// Source records how a sample entered the system.
type Source string

const (
	SourceManual   Source = "manual"
	SourceDevice   Source = "device"
	SourceApp      Source = "app"
	SourceImported Source = "imported"
)

// ParseSource validates s. An empty string means manual entry.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case "":
		return SourceManual, nil
	case SourceManual, SourceDevice, SourceApp, SourceImported:
		return Source(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
}

// Sample maps to the metric_sample table. Samples are never mutated after
// creation apart from soft deletion.
type Sample struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	SubjectID  uuid.UUID  `db:"subject_id" json:"subject_id"`
	MetricType MetricType `db:"metric_type" json:"metric_type"`
	Value      float64    `db:"value" json:"value"`
	Unit       string     `db:"unit" json:"unit"`
	Timestamp  time.Time  `db:"recorded_at" json:"timestamp"`
	Source     Source     `db:"source" json:"source"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	Notes      *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// NewSample builds a validated, active sample. A zero timestamp means now;
// an empty unit takes the catalog default.
func NewSample(subjectID uuid.UUID, metricType string, value float64, unit string, ts time.Time, source string) (*Sample, error) {
	if subjectID == uuid.Nil {
		return nil, apperror.Invalid("subject_id is required")
	}
	mt, err := ParseMetricType(metricType)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, ErrInvalidValue
	}
	src, err := ParseSource(source)
	if err != nil {
		return nil, err
	}
	if unit == "" {
		unit = catalog[mt].DefaultUnit
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Sample{
		SubjectID:  subjectID,
		MetricType: mt,
		Value:      value,
		Unit:       unit,
		Timestamp:  ts.UTC(),
		Source:     src,
		IsActive:   true,
	}, nil
}

// SampleFilter narrows a subject's sample listing.
type SampleFilter struct {
	MetricType MetricType
	Start      *time.Time
	End        *time.Time
}
