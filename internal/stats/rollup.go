// Package stats computes on-demand usage rollups over persisted readings.
package stats

import (
	"strconv"
	"time"

	"github.com/housewatch/household-watch/internal/models"
)

// CostPerKWh is the flat billing rate applied to monthly usage.
const CostPerKWh = 0.15

// Summary holds the raw rollup numbers for one request.
type Summary struct {
	TodayUsage   float64
	MonthlyUsage float64
	Cost         float64
	AveragePower float64
	TodayCount   int
	MonthCount   int
}

// ReadingsCount reports how many readings fell in each window.
type ReadingsCount struct {
	Today int `json:"today"`
	Month int `json:"month"`
}

// EnergyStats is the wire form of a Summary: fixed-precision decimal strings
// so the dashboard renders stable widths.
type EnergyStats struct {
	TodayUsage    string        `json:"todayUsage"`
	MonthlyUsage  string        `json:"monthlyUsage"`
	Cost          string        `json:"cost"`
	AveragePower  string        `json:"averagePower"`
	ReadingsCount ReadingsCount `json:"readingsCount"`
}

// EnergyDelta returns the growth of the cumulative energy counter across the
// readings, which must be in ascending time order. A meter reset makes the
// raw subtraction negative; the result is clamped to zero instead of
// reporting negative usage.
func EnergyDelta(readings []*models.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	delta := readings[len(readings)-1].Energy - readings[0].Energy
	if delta < 0 {
		return 0
	}
	return delta
}

// AveragePower returns the mean power over the readings, 0 if there are none.
func AveragePower(readings []*models.Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range readings {
		sum += r.Power
	}
	return sum / float64(len(readings))
}

// Compute rolls up today's and this month's readings. Both slices must be in
// ascending time order; the clamps apply to each window independently.
func Compute(today, month []*models.Reading) Summary {
	monthlyUsage := EnergyDelta(month)
	return Summary{
		TodayUsage:   EnergyDelta(today),
		MonthlyUsage: monthlyUsage,
		Cost:         monthlyUsage * CostPerKWh,
		AveragePower: AveragePower(today),
		TodayCount:   len(today),
		MonthCount:   len(month),
	}
}

// Stats formats the summary for the wire: usage to 3 places today, 2 places
// monthly, cost and average power to 2.
func (s Summary) Stats() EnergyStats {
	return EnergyStats{
		TodayUsage:   strconv.FormatFloat(s.TodayUsage, 'f', 3, 64),
		MonthlyUsage: strconv.FormatFloat(s.MonthlyUsage, 'f', 2, 64),
		Cost:         strconv.FormatFloat(s.Cost, 'f', 2, 64),
		AveragePower: strconv.FormatFloat(s.AveragePower, 'f', 2, 64),
		ReadingsCount: ReadingsCount{
			Today: s.TodayCount,
			Month: s.MonthCount,
		},
	}
}

// StartOfDay returns local midnight for t.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfMonth returns the first instant of t's calendar month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
