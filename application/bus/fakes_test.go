package bus

import (
	"errors"
	"fmt"

	"github.com/wasmpico/picohost/domain/entities"
)

// recorder is a shared event log for the fake bus and select line, so tests
// can assert the relative order of hardware events.
type recorder struct {
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

type fakePin struct {
	rec    *recorder
	err    error
	levels []entities.Level
}

func (p *fakePin) Name() string { return "GPIO17" }

func (p *fakePin) Out(l entities.Level) error {
	p.levels = append(p.levels, l)
	p.rec.add("cs %s", l)
	return p.err
}

// fakeBus fails the call whose 1-based index equals failAt.
type fakeBus struct {
	rec      *recorder
	panicMsg string
	rx       []byte
	written  [][]byte
	configs  []entities.BusConfig
	calls    int
	failAt   int
}

var errBusFault = errors.New("bus fault")

func (b *fakeBus) step(kind string, n int) error {
	b.calls++
	b.rec.add("%s %d", kind, n)
	if b.panicMsg != "" && b.calls == b.failAt {
		panic(b.panicMsg)
	}
	if b.calls == b.failAt {
		return errBusFault
	}
	return nil
}

func (b *fakeBus) Read(p []byte) error {
	if err := b.step("read", len(p)); err != nil {
		return err
	}
	copy(p, b.rx)
	return nil
}

func (b *fakeBus) Write(p []byte) error {
	if err := b.step("write", len(p)); err != nil {
		return err
	}
	b.written = append(b.written, append([]byte(nil), p...))
	return nil
}

func (b *fakeBus) Transfer(r, w []byte) error {
	if err := b.step("transfer", len(w)); err != nil {
		return err
	}
	for i := range w {
		r[i] = ^w[i]
	}
	return nil
}

// configurableBus adds reprogramming support to fakeBus.
// failNext fails that many upcoming Configure calls before err applies.
type configurableBus struct {
	*fakeBus
	err      error
	failNext int
}

func (b *configurableBus) Configure(cfg entities.BusConfig) error {
	b.rec.add("configure %d", cfg.FrequencyHz)
	if b.failNext > 0 {
		b.failNext--
		return errBusFault
	}
	if b.err != nil {
		return b.err
	}
	b.configs = append(b.configs, cfg)
	return nil
}

type recordingDelay struct {
	rec *recorder
}

func (d recordingDelay) DelayNs(ns uint64) {
	d.rec.add("delay %d", ns)
}
