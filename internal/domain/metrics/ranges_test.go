package metrics

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassify_HeartRateScenario(t *testing.T) {
	table := DefaultRangeTable()
	cases := []struct {
		value float64
		want  Tier
	}{
		{165, TierCritical},
		{45, TierCritical},
		{50, TierWarning},
		{49.9, TierCritical},
		{105, TierWarning},
		{80, TierNormal},
		{55, TierWarning},
		{151, TierCritical},
		{60, TierNormal},
		{100, TierNormal},
	}
	for _, tc := range cases {
		if got := table.Classify(HeartRate, tc.value); got != tc.want {
			t.Errorf("Classify(heart_rate, %v) = %s, want %s", tc.value, got, tc.want)
		}
	}
}

func TestRangeEntry_Classify_ExplicitBounds(t *testing.T) {
	e := RangeEntry{Min: 60, Max: 100, CriticalMin: bound(40), CriticalMax: bound(150)}
	cases := []struct {
		value float64
		want  Tier
	}{
		{165, TierCritical},
		{39.9, TierCritical},
		{45, TierWarning},
		{105, TierWarning},
		{80, TierNormal},
	}
	for _, tc := range cases {
		if got := e.Classify(tc.value); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.value, got, tc.want)
		}
	}
}

func TestClassify_CriticalBoundsAlwaysCritical(t *testing.T) {
	for mt, e := range DefaultRangeTable() {
		if e.CriticalMin != nil {
			if got := e.Classify(*e.CriticalMin - 0.01); got != TierCritical {
				t.Errorf("%s below critical_min: got %s", mt, got)
			}
		}
		if e.CriticalMax != nil {
			if got := e.Classify(*e.CriticalMax + 0.01); got != TierCritical {
				t.Errorf("%s above critical_max: got %s", mt, got)
			}
		}
		if got := e.Classify((e.Min + e.Max) / 2); got != TierNormal {
			t.Errorf("%s mid-band: got %s", mt, got)
		}
		if e.CriticalMax == nil || *e.CriticalMax > e.Max {
			if got := e.Classify(e.Max + 0.001); got != TierWarning {
				t.Errorf("%s just above max: got %s", mt, got)
			}
		}
	}
}

func TestClassify_NoEntryIsNormal(t *testing.T) {
	table := DefaultRangeTable()
	if got := table.Classify(Steps, 4000); got != TierNormal {
		t.Errorf("expected steps to be normal, got %s", got)
	}
	if got := table.Classify(MetricType("unknown"), -1e9); got != TierNormal {
		t.Errorf("expected unknown metric to be normal, got %s", got)
	}
}

func TestLoadRangeTable_EmptyPathReturnsDefaults(t *testing.T) {
	table, err := LoadRangeTable("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != len(DefaultRangeTable()) {
		t.Errorf("expected %d entries, got %d", len(DefaultRangeTable()), len(table))
	}
}

func TestLoadRangeTable_Overlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ranges.yaml")
	content := "ranges:\n  heart_rate:\n    min: 55\n    max: 95\n    critical_min: 35\n    critical_max: 160\n  steps:\n    min: 2000\n    max: 30000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	table, err := LoadRangeTable(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hr := table[HeartRate]
	if hr.Min != 55 || hr.Max != 95 || *hr.CriticalMin != 35 || *hr.CriticalMax != 160 {
		t.Errorf("heart_rate not overlaid: %+v", hr)
	}
	if _, ok := table[Steps]; !ok {
		t.Error("expected steps entry from file")
	}
	if _, ok := table[Glucose]; !ok {
		t.Error("expected glucose default to survive overlay")
	}
}

func TestLoadRangeTable_RejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ranges.yaml")
	if err := os.WriteFile(path, []byte("ranges:\n  pulse:\n    min: 1\n    max: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRangeTable(path); err == nil {
		t.Error("expected error for unknown metric type")
	}
}

func TestLoadRangeTable_RejectsInvertedBand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ranges.json")
	if err := os.WriteFile(path, []byte(`{"ranges":{"glucose":{"min":100,"max":70}}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRangeTable(path); err == nil {
		t.Error("expected error for min > max")
	}
}
