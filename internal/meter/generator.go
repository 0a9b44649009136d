package meter

import (
	"math/rand"
	"time"
)

// Sample is one synthetic power sample produced by the generator.
type Sample struct {
	Time  time.Time
	Label string  // human-readable clock label for charting
	Value float64 // kW
}

// minLoadKW is the hard lower bound on any generated sample.
const minLoadKW = 0.5

// BaseLoad returns the expected household load in kW for an hour of day.
// Contributions are additive: an hour inside several bands accumulates all
// of them.
func BaseLoad(hour int) float64 {
	load := 2.0
	if hour >= 6 && hour <= 9 {
		load += 3 // morning routine
	}
	if hour >= 17 && hour <= 22 {
		load += 4 // evening peak
	}
	if hour >= 12 && hour <= 14 {
		load += 2 // midday cooking
	}
	return load
}

// Generator produces synthetic power samples from the time-of-day load model
// with multiplicative noise. It stands in for a physical meter.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator seeded from the wall clock.
func NewGenerator() *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

// Next produces one sample: base load for the current hour, ±20%
// multiplicative noise, floored at 0.5 kW.
func (g *Generator) Next() Sample {
	now := g.now()
	base := BaseLoad(now.Hour())
	variation := (g.rng.Float64() - 0.5) * 0.4 * base
	value := base + variation
	if value < minLoadKW {
		value = minLoadKW
	}
	return Sample{
		Time:  now,
		Label: now.Format("15:04:05"),
		Value: value,
	}
}
