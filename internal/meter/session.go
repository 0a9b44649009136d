package meter

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// TickPeriod is the fixed sampling period of a connected session.
	TickPeriod = 3 * time.Second

	// WindowSize is the chart window capacity.
	WindowSize = 20

	// ticksPerHour converts one 3-second sample into hours: 3s = 1/1200 h,
	// so a sample of p kW contributes p/1200 kWh.
	ticksPerHour = 1200

	// monthlyProjectionFactor scales a tick's increment into the monthly
	// counter. This is a flat 30x projection of the day, not a calendar
	// rollup; the server-side stats endpoint does the calendar math.
	monthlyProjectionFactor = 30

	// sessionCostPerKWh is the rate the live view accrues cost at. The
	// billing rollup charges stats.CostPerKWh instead; the two rates come
	// from different parts of the product and do not agree.
	sessionCostPerKWh = 15
)

// Session runs one simulated meter: a recurring timer that draws a sample
// per tick, feeds the rolling chart window and accumulates usage counters.
// Counters are volatile: they exist only while connected and reset to zero
// on disconnect. Connect and Disconnect are idempotent.
type Session struct {
	id       string
	gen      *Generator
	interval time.Duration
	logger   zerolog.Logger
	samples  chan Sample

	mu           sync.Mutex
	connected    bool
	stopChan     chan struct{}
	window       *RollingWindow
	currentPower float64
	todayUsage   float64
	monthlyUsage float64
	cost         float64

	wg sync.WaitGroup
}

// Snapshot is a point-in-time copy of session state for the presentation
// layer.
type Snapshot struct {
	SessionID    string  `json:"sessionId"`
	Connected    bool    `json:"connected"`
	CurrentPower float64 `json:"currentPower"`
	TodayUsage   float64 `json:"todayUsage"`
	MonthlyUsage float64 `json:"monthlyUsage"`
	Cost         float64 `json:"cost"`
	Points       []Point `json:"points"`
}

// NewSession creates a disconnected session.
func NewSession(logger zerolog.Logger) *Session {
	return &Session{
		id:       uuid.NewString(),
		gen:      NewGenerator(),
		interval: TickPeriod,
		logger:   logger,
		samples:  make(chan Sample, 16),
		window:   NewRollingWindow(WindowSize),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Connect starts the sampling timer. Calling Connect on an already connected
// session is a no-op: only one timer ever runs per session.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		s.logger.Debug().Str("session_id", s.id).Msg("Connect ignored, already streaming")
		return
	}
	s.connected = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(stop)

	s.logger.Info().Str("session_id", s.id).Dur("interval", s.interval).Msg("Meter session connected")
}

// Disconnect stops the timer and resets all session state. It blocks until
// the sampling loop has exited, so no tick can mutate counters after the
// reset. Disconnecting a session that is not connected is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	stop := s.stopChan
	s.stopChan = nil
	s.mu.Unlock()

	close(stop)
	s.wg.Wait()

	s.mu.Lock()
	s.window.Clear()
	s.currentPower = 0
	s.todayUsage = 0
	s.monthlyUsage = 0
	s.cost = 0
	s.mu.Unlock()

	s.logger.Info().Str("session_id", s.id).Msg("Meter session disconnected, counters reset")
}

// Connected reports whether the sampling timer is running.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Samples returns the channel where each tick's sample is published.
// Slow consumers miss samples rather than stalling the timer.
func (s *Session) Samples() <-chan Sample {
	return s.samples
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:    s.id,
		Connected:    s.connected,
		CurrentPower: s.currentPower,
		TodayUsage:   s.todayUsage,
		MonthlyUsage: s.monthlyUsage,
		Cost:         s.cost,
		Points:       s.window.Points(),
	}
}

// run is the sampling loop. It exits when stop is closed.
func (s *Session) run(stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick draws one sample, folds it into the session state and publishes it.
func (s *Session) tick() {
	sample := s.gen.Next()
	s.observe(sample)
	select {
	case s.samples <- sample:
	default:
	}
}

// observe feeds one sample into the window and counters. A tick that races a
// disconnect finds connected=false and leaves the reset state untouched.
func (s *Session) observe(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return
	}

	s.currentPower = sample.Value
	s.window.Push(Point{Time: sample.Label, Value: sample.Value})

	increment := sample.Value / ticksPerHour
	s.todayUsage += increment
	s.monthlyUsage += increment * monthlyProjectionFactor
	s.cost += increment * sessionCostPerKWh
}
