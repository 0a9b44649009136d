package stats

import (
	"testing"
	"time"

	"github.com/housewatch/household-watch/internal/models"
)

func readingsWithEnergy(energies ...float64) []*models.Reading {
	readings := make([]*models.Reading, len(energies))
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.Local)
	for i, e := range energies {
		readings[i] = &models.Reading{
			DeviceID:  models.DefaultDeviceID,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Energy:    e,
			Power:     2.0,
		}
	}
	return readings
}

func TestEnergyDelta(t *testing.T) {
	tests := []struct {
		name     string
		energies []float64
		want     float64
	}{
		{"empty", nil, 0},
		{"single reading", []float64{5.0}, 0},
		{"normal growth", []float64{10.0, 10.5, 12.5}, 2.5},
		{"flat counter", []float64{3.0, 3.0, 3.0}, 0},
		{"meter reset clamps to zero", []float64{10.0, 3.0, 8.0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnergyDelta(readingsWithEnergy(tt.energies...))
			if got != tt.want {
				t.Errorf("EnergyDelta = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAveragePower(t *testing.T) {
	if got := AveragePower(nil); got != 0 {
		t.Errorf("AveragePower(nil) = %v, want 0", got)
	}

	readings := []*models.Reading{
		{Power: 2.0},
		{Power: 4.0},
		{Power: 6.0},
	}
	if got := AveragePower(readings); got != 4.0 {
		t.Errorf("AveragePower = %v, want 4.0", got)
	}
}

func TestCompute(t *testing.T) {
	today := readingsWithEnergy(100.0, 100.5, 101.2)
	month := readingsWithEnergy(80.0, 100.0, 101.2)

	summary := Compute(today, month)

	if summary.TodayUsage != 101.2-100.0 {
		t.Errorf("TodayUsage = %v, want %v", summary.TodayUsage, 101.2-100.0)
	}
	if summary.MonthlyUsage != 101.2-80.0 {
		t.Errorf("MonthlyUsage = %v, want %v", summary.MonthlyUsage, 101.2-80.0)
	}
	if summary.Cost != (101.2-80.0)*CostPerKWh {
		t.Errorf("Cost = %v, want %v", summary.Cost, (101.2-80.0)*CostPerKWh)
	}
	if summary.AveragePower != 2.0 {
		t.Errorf("AveragePower = %v, want 2.0", summary.AveragePower)
	}
	if summary.TodayCount != 3 || summary.MonthCount != 3 {
		t.Errorf("Counts = %d/%d, want 3/3", summary.TodayCount, summary.MonthCount)
	}
}

func TestCompute_Empty(t *testing.T) {
	summary := Compute(nil, nil)

	if summary.TodayUsage != 0 || summary.MonthlyUsage != 0 || summary.Cost != 0 || summary.AveragePower != 0 {
		t.Errorf("Empty compute should be all zero, got %+v", summary)
	}

	es := summary.Stats()
	if es.TodayUsage != "0.000" {
		t.Errorf("TodayUsage = %q, want %q", es.TodayUsage, "0.000")
	}
	if es.MonthlyUsage != "0.00" {
		t.Errorf("MonthlyUsage = %q, want %q", es.MonthlyUsage, "0.00")
	}
	if es.Cost != "0.00" {
		t.Errorf("Cost = %q, want %q", es.Cost, "0.00")
	}
	if es.AveragePower != "0.00" {
		t.Errorf("AveragePower = %q, want %q", es.AveragePower, "0.00")
	}
}

func TestCompute_Idempotent(t *testing.T) {
	today := readingsWithEnergy(50.0, 50.4)
	month := readingsWithEnergy(40.0, 50.4)

	first := Compute(today, month)
	second := Compute(today, month)

	if first != second {
		t.Errorf("Repeated compute over same readings differed: %+v vs %+v", first, second)
	}
}

func TestSummary_Stats_Formatting(t *testing.T) {
	summary := Summary{
		TodayUsage:   1.23456,
		MonthlyUsage: 37.3333,
		Cost:         5.5999,
		AveragePower: 2.345,
		TodayCount:   12,
		MonthCount:   480,
	}

	es := summary.Stats()

	if es.TodayUsage != "1.235" {
		t.Errorf("TodayUsage = %q, want %q", es.TodayUsage, "1.235")
	}
	if es.MonthlyUsage != "37.33" {
		t.Errorf("MonthlyUsage = %q, want %q", es.MonthlyUsage, "37.33")
	}
	if es.Cost != "5.60" {
		t.Errorf("Cost = %q, want %q", es.Cost, "5.60")
	}
	if es.AveragePower != "2.35" {
		t.Errorf("AveragePower = %q, want %q", es.AveragePower, "2.35")
	}
	if es.ReadingsCount.Today != 12 || es.ReadingsCount.Month != 480 {
		t.Errorf("ReadingsCount = %+v, want {12 480}", es.ReadingsCount)
	}
}

func TestStartOfDay(t *testing.T) {
	at := time.Date(2026, 3, 10, 17, 45, 30, 123, time.Local)
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local)

	if got := StartOfDay(at); !got.Equal(want) {
		t.Errorf("StartOfDay = %v, want %v", got, want)
	}
}

func TestStartOfMonth(t *testing.T) {
	at := time.Date(2026, 3, 10, 17, 45, 30, 123, time.Local)
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local)

	if got := StartOfMonth(at); !got.Equal(want) {
		t.Errorf("StartOfMonth = %v, want %v", got, want)
	}
}
