// Package delay implements the blocking wait capability.
package delay

import (
	"math"
	"time"

	"github.com/wasmpico/picohost/domain/ports"
)

// spinThreshold is the longest wait served by spinning instead of sleeping.
const spinThreshold = 50 * time.Microsecond

// Service blocks the caller for a requested duration. It is used both by the
// guest delay capability and by delay steps inside bus transactions.
type Service struct {
	sleeper ports.Sleeper
}

// Option configures a Service.
type Option func(*Service)

// WithSleeper replaces the clock used to wait.
func WithSleeper(s ports.Sleeper) Option {
	return func(svc *Service) {
		if s != nil {
			svc.sleeper = s
		}
	}
}

// New creates a delay service backed by the system clock.
func New(opts ...Option) *Service {
	s := &Service{sleeper: SystemSleeper{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DelayMs blocks for ms milliseconds. Zero returns immediately.
func (s *Service) DelayMs(ms uint32) {
	if ms == 0 {
		return
	}
	s.sleeper.Sleep(time.Duration(ms) * time.Millisecond)
}

// DelayNs blocks for ns nanoseconds. Zero returns immediately.
func (s *Service) DelayNs(ns uint64) {
	if ns == 0 {
		return
	}
	if ns > math.MaxInt64 {
		ns = math.MaxInt64
	}
	s.sleeper.Sleep(time.Duration(ns)) //nolint:gosec // G115: clamped above
}

// SystemSleeper waits on the wall clock. Short waits spin so that
// sub-microsecond bus timings are not rounded up to the scheduler tick.
type SystemSleeper struct{}

// Sleep blocks for at least d.
func (SystemSleeper) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if d > spinThreshold {
		time.Sleep(d)
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
