package delay

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wasmpico/picohost/domain/ports"
	"github.com/wasmpico/picohost/internal/testutil"
)

type recordingSleeper struct {
	calls []time.Duration
}

func (r *recordingSleeper) Sleep(d time.Duration) {
	r.calls = append(r.calls, d)
}

func TestDelayMs(t *testing.T) {
	rec := &recordingSleeper{}
	svc := New(WithSleeper(rec))

	svc.DelayMs(500)
	svc.DelayMs(0)

	assert.Equal(t, []time.Duration{500 * time.Millisecond}, rec.calls)
}

func TestDelayNs(t *testing.T) {
	rec := &recordingSleeper{}
	svc := New(WithSleeper(rec))

	svc.DelayNs(150)
	svc.DelayNs(0)
	svc.DelayNs(math.MaxUint64)

	assert.Equal(t, []time.Duration{150, time.Duration(math.MaxInt64)}, rec.calls)
}

func TestWithSleeperFunc(t *testing.T) {
	var got time.Duration
	svc := New(WithSleeper(ports.SleeperFunc(func(d time.Duration) { got = d })))

	svc.DelayMs(3)
	assert.Equal(t, 3*time.Millisecond, got)
}

func TestSystemSleeper_BlocksAtLeast(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
	}{
		{"spin", 20 * time.Microsecond},
		{"sleep", 2 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			SystemSleeper{}.Sleep(tt.d)
			elapsed := time.Since(start)
			assert.GreaterOrEqual(t, elapsed, tt.d)
			testutil.AssertDurationWithin(t, tt.d, elapsed, 250*time.Millisecond)
		})
	}
}
