package bus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/wasmpico/picohost/domain/entities"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"github.com/wasmpico/picohost/internal/heap"
	"github.com/wasmpico/picohost/internal/testutil"
)

// EngineSuite drives the engine against a recording bus and select line.
type EngineSuite struct {
	suite.Suite
	rec    *recorder
	heap   *heap.Heap
	bus    *fakeBus
	cs     *fakePin
	engine *Engine
}

func (s *EngineSuite) SetupTest() {
	s.rec = &recorder{}
	s.bus = &fakeBus{rec: s.rec, rx: []byte{0xAB, 0xCD, 0xEF}}
	s.cs = &fakePin{rec: s.rec}

	h, err := heap.New(4096)
	s.Require().NoError(err)
	s.heap = h

	s.engine, err = New(h, s.bus, s.cs, WithDelayer(recordingDelay{rec: s.rec}))
	s.Require().NoError(err)
	s.rec.events = nil
}

func (s *EngineSuite) open() entities.Handle {
	h, err := s.engine.Open("spi0")
	s.Require().NoError(err)
	return h
}

func (s *EngineSuite) assertPaired() {
	st := s.engine.Stats()
	s.Equal(st.Selects, st.Deselects, "every select is released")
	s.False(s.engine.Selected())
	if n := len(s.cs.levels); n > 0 {
		s.Equal(entities.High, s.cs.levels[n-1], "line ends released")
	}
}

func (s *EngineSuite) TestNew_ReleasesSelectLine() {
	s.Equal(entities.High, s.cs.levels[0])
	s.Equal([]string{"spi0"}, s.engine.DeviceNames())
}

func (s *EngineSuite) TestNew_RequiresCollaborators() {
	_, err := New(nil, s.bus, s.cs)
	s.Error(err)
	_, err = New(s.heap, nil, s.cs)
	s.Error(err)
	_, err = New(s.heap, s.bus, nil)
	s.Error(err)
}

func (s *EngineSuite) TestOpen_UnknownDevice() {
	_, err := s.engine.Open("spi9")
	var nf *domainerrors.NotFoundError
	s.Require().True(errors.As(err, &nf))
	s.Equal("spi9", nf.Name)
	s.Equal(0, s.engine.Stats().Handles)
}

func (s *EngineSuite) TestOpen_ChargesHeap() {
	before := s.heap.Stats().Used
	h := s.open()
	s.Greater(s.heap.Stats().Used, before)

	s.Require().NoError(s.engine.Drop(h))
	s.Equal(before, s.heap.Stats().Used)
}

func (s *EngineSuite) TestOpen_HeapExhausted() {
	h, err := heap.New(16)
	s.Require().NoError(err)
	engine, err := New(h, s.bus, s.cs)
	s.Require().NoError(err)

	_, err = engine.Open("spi0")
	s.Require().ErrorIs(err, domainerrors.ErrOutOfMemory)
	var de *domainerrors.DeviceError
	s.Require().True(errors.As(err, &de))
	s.Equal("OUT_OF_MEMORY", de.ToErrorDetail().Code)
}

func (s *EngineSuite) TestRead() {
	h := s.open()

	data, err := s.engine.Read(h, 2)
	s.Require().NoError(err)
	s.Equal([]byte{0xAB, 0xCD}, data)
	s.Equal([]string{"cs low", "read 2", "cs high"}, s.rec.events)
	s.assertPaired()
}

func (s *EngineSuite) TestRead_ResultOutlivesScratch() {
	h := s.open()
	used := s.heap.Stats().Used

	data, err := s.engine.Read(h, 3)
	s.Require().NoError(err)
	s.Equal(used, s.heap.Stats().Used, "scratch buffer returned to the heap")

	// Reuse the freed region and make sure the result is a private copy.
	_, err = s.engine.Transfer(h, []byte{0, 0, 0})
	s.Require().NoError(err)
	s.Equal([]byte{0xAB, 0xCD, 0xEF}, data)
}

func (s *EngineSuite) TestWrite() {
	h := s.open()

	s.Require().NoError(s.engine.Write(h, []byte{0x01, 0x02}))
	s.Equal([][]byte{{0x01, 0x02}}, s.bus.written)
	s.Equal([]string{"cs low", "write 2", "cs high"}, s.rec.events)
	s.assertPaired()
}

func (s *EngineSuite) TestTransfer() {
	h := s.open()

	rx, err := s.engine.Transfer(h, []byte{0x0F, 0xF0})
	s.Require().NoError(err)
	s.Equal([]byte{0xF0, 0x0F}, rx)
	s.assertPaired()
}

func (s *EngineSuite) TestFailureReleasesSelect() {
	h := s.open()

	for name, call := range map[string]func() error{
		"read":     func() error { _, err := s.engine.Read(h, 1); return err },
		"write":    func() error { return s.engine.Write(h, []byte{1}) },
		"transfer": func() error { _, err := s.engine.Transfer(h, []byte{1}); return err },
	} {
		s.Run(name, func() {
			s.bus.calls = 0
			s.bus.failAt = 1
			s.rec.events = nil

			err := call()
			s.Require().ErrorIs(err, errBusFault)
			var de *domainerrors.DeviceError
			s.Require().True(errors.As(err, &de))
			s.Equal(name, de.Op)
			s.Equal("cs high", s.rec.events[len(s.rec.events)-1])
			s.assertPaired()
		})
	}
	s.Equal(uint64(3), s.engine.Stats().Failures)
}

func (s *EngineSuite) TestPanicReleasesSelect() {
	h := s.open()
	s.bus.failAt = 1
	s.bus.panicMsg = "driver crashed"

	s.Panics(func() { _ = s.engine.Write(h, []byte{1}) })
	s.assertPaired()
	s.Equal("cs high", s.rec.events[len(s.rec.events)-1])
}

func (s *EngineSuite) TestTransferLimit() {
	h := s.open()
	big := make([]byte, entities.DefaultLimits().MaxTransferSize+1)

	err := s.engine.Write(h, big)
	s.Require().Error(err)
	_, err = s.engine.Read(h, uint64(len(big)))
	s.Require().Error(err)
	s.Empty(s.rec.events, "oversized requests never touch the bus")
}

func (s *EngineSuite) TestReadBufferExhaustion() {
	h, err := heap.New(64)
	s.Require().NoError(err)
	engine, err := New(h, s.bus, s.cs)
	s.Require().NoError(err)
	handle, err := engine.Open("spi0")
	s.Require().NoError(err)
	s.rec.events = nil

	_, err = engine.Read(handle, 60)
	s.Require().ErrorIs(err, domainerrors.ErrOutOfMemory)
	s.Empty(s.rec.events)
	s.Zero(engine.Stats().Selects)
}

func (s *EngineSuite) TestHandleLifecycle() {
	h := s.open()
	s.Require().NoError(s.engine.Drop(h))

	var invalid *domainerrors.InvalidHandleError
	s.True(errors.As(s.engine.Drop(h), &invalid))
	s.True(errors.As(s.engine.Write(h, []byte{1}), &invalid))
	_, err := s.engine.Read(h, 1)
	s.True(errors.As(err, &invalid))
	_, err = s.engine.Transaction(h, nil)
	s.True(errors.As(err, &invalid))
	s.True(errors.As(s.engine.Configure(h, entities.DefaultBusConfig()), &invalid))
	s.Empty(s.rec.events)
}

func (s *EngineSuite) TestClose_DisposesHandles() {
	a := s.open()
	s.open()
	used := s.heap.Stats().Used
	s.Require().NotZero(used)

	s.Require().NoError(s.engine.Close())
	s.Equal(0, s.engine.Stats().Handles)
	s.Zero(s.heap.Stats().Used)

	var invalid *domainerrors.InvalidHandleError
	s.True(errors.As(s.engine.Drop(a), &invalid))
}

func (s *EngineSuite) TestClose_LogsAbandonedHandles() {
	logger, logs := testutil.ObservedLogger()
	engine, err := New(s.heap, s.bus, s.cs, WithLogger(logger))
	s.Require().NoError(err)
	a, err := engine.Open("spi0")
	s.Require().NoError(err)
	_, err = engine.Open("spi0")
	s.Require().NoError(err)
	s.Require().NoError(engine.Drop(a))

	s.Require().NoError(engine.Close())
	entries := logs.FilterMessage("disposing abandoned bus handle").All()
	s.Require().Len(entries, 1)
	s.Equal("spi0", entries[0].ContextMap()["device"])
}

func (s *EngineSuite) TestConfigure_NonConfigurableBus() {
	h := s.open()
	cfg := entities.BusConfig{FrequencyHz: 1_000_000, Mode: entities.Mode3, BitOrder: entities.LSBFirst}

	s.Require().NoError(s.engine.Configure(h, cfg))
	s.Empty(s.rec.events)
}

func (s *EngineSuite) TestConfigure_Validation() {
	h := s.open()

	tests := []struct {
		name string
		cfg  entities.BusConfig
	}{
		{"zero frequency", entities.BusConfig{FrequencyHz: 0}},
		{"bad mode", entities.BusConfig{FrequencyHz: 1000, Mode: 4}},
		{"bad bit order", entities.BusConfig{FrequencyHz: 1000, BitOrder: 2}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := s.engine.Configure(h, tt.cfg)
			var ce *domainerrors.ConfigError
			s.True(errors.As(err, &ce))
		})
	}
}

func (s *EngineSuite) TestConfigure_ReprogramsPerHandle() {
	cb := &configurableBus{fakeBus: s.bus}
	engine, err := New(s.heap, cb, s.cs)
	s.Require().NoError(err)

	fast, err := engine.Open("spi0")
	s.Require().NoError(err)
	slow, err := engine.Open("spi0")
	s.Require().NoError(err)

	s.Require().NoError(engine.Configure(fast, entities.BusConfig{FrequencyHz: 8_000_000}))
	s.Require().NoError(engine.Configure(slow, entities.BusConfig{FrequencyHz: 100_000}))
	s.rec.events = nil

	s.Require().NoError(engine.Write(fast, []byte{1}))
	s.Require().NoError(engine.Write(fast, []byte{2}))
	s.Require().NoError(engine.Write(slow, []byte{3}))

	s.Equal([]string{
		"configure 8000000", "cs low", "write 1", "cs high",
		"cs low", "write 1", "cs high",
		"configure 100000", "cs low", "write 1", "cs high",
	}, s.rec.events)
}

func (s *EngineSuite) TestConfigure_HardwareFailure() {
	cb := &configurableBus{fakeBus: s.bus, err: errors.New("unsupported mode")}
	engine, err := New(s.heap, cb, s.cs)
	s.Require().NoError(err)
	h, err := engine.Open("spi0")
	s.Require().NoError(err)

	err = engine.Configure(h, entities.BusConfig{FrequencyHz: 1000, Mode: entities.Mode2})
	var de *domainerrors.DeviceError
	s.Require().True(errors.As(err, &de))
	s.Equal("configure", de.Op)
}

func (s *EngineSuite) TestConfigure_RetriesAfterFailedReprogram() {
	cb := &configurableBus{fakeBus: s.bus}
	engine, err := New(s.heap, cb, s.cs)
	s.Require().NoError(err)
	a, err := engine.Open("spi0")
	s.Require().NoError(err)
	b, err := engine.Open("spi0")
	s.Require().NoError(err)

	cfgA := entities.BusConfig{FrequencyHz: 1_000_000}
	s.Require().NoError(engine.Configure(a, cfgA))
	s.Require().NoError(engine.Write(a, []byte{1}))

	cb.failNext = 1
	s.Error(engine.Configure(b, entities.BusConfig{FrequencyHz: 2_000_000}))
	s.rec.events = nil

	s.Require().NoError(engine.Write(a, []byte{2}))
	s.Equal([]string{"configure 1000000", "cs low", "write 1", "cs high"}, s.rec.events)

	s.rec.events = nil
	s.Require().NoError(engine.Configure(a, cfgA))
	s.Empty(s.rec.events, "config already active after recovery")
}

func (s *EngineSuite) TestConfigure_FailedReprogramSurfacesOnSameConfig() {
	cb := &configurableBus{fakeBus: s.bus}
	engine, err := New(s.heap, cb, s.cs)
	s.Require().NoError(err)
	h, err := engine.Open("spi0")
	s.Require().NoError(err)

	cfg := entities.BusConfig{FrequencyHz: 1_000_000}
	s.Require().NoError(engine.Configure(h, cfg))

	cb.failNext = 2
	s.Error(engine.Configure(h, entities.BusConfig{FrequencyHz: 2_000_000}))
	s.Error(engine.Configure(h, cfg), "same config is reapplied and its failure reported")
	s.Require().NoError(engine.Configure(h, cfg))
}

func (s *EngineSuite) TestActiveHighSelect() {
	engine, err := New(s.heap, s.bus, s.cs, WithSelectLevel(entities.High))
	s.Require().NoError(err)
	h, err := engine.Open("spi0")
	s.Require().NoError(err)
	s.rec.events = nil

	s.Require().NoError(engine.Write(h, []byte{1}))
	s.Equal([]string{"cs high", "write 1", "cs low"}, s.rec.events)
}

func (s *EngineSuite) TestSelectFailure() {
	h := s.open()
	s.cs.err = errors.New("pin fault")

	err := s.engine.Write(h, []byte{1})
	var de *domainerrors.DeviceError
	s.Require().True(errors.As(err, &de))
	s.Contains(de.Message, "chip-select")
	s.Empty(s.bus.written)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}
