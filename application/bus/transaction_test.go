package bus

import (
	"errors"

	"github.com/wasmpico/picohost/domain/entities"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"github.com/wasmpico/picohost/internal/heap"
)

func (s *EngineSuite) TestTransaction_SingleEnvelope() {
	h := s.open()

	results, err := s.engine.Transaction(h, []entities.Operation{
		entities.Write([]byte{0x9F}),
		entities.DelayNs(250),
		entities.Read(3),
		entities.Transfer([]byte{0x00, 0xFF}),
	})
	s.Require().NoError(err)

	s.Equal([]string{
		"cs low",
		"write 1",
		"delay 250",
		"read 3",
		"transfer 2",
		"cs high",
	}, s.rec.events)

	s.Require().Len(results, 4)
	s.Equal(entities.OpWrite, results[0].Kind)
	s.Nil(results[0].Data)
	s.Equal(entities.OpDelayNs, results[1].Kind)
	s.Equal([]byte{0xAB, 0xCD, 0xEF}, results[2].Data)
	s.Equal([]byte{0xFF, 0x00}, results[3].Data)

	st := s.engine.Stats()
	s.Equal(uint64(1), st.Selects)
	s.Equal(uint64(1), st.Deselects)
}

// A write followed by a failing read yields one select, one release and no results.
func (s *EngineSuite) TestTransaction_FailureAtStep() {
	h := s.open()
	used := s.heap.Stats().Used
	s.bus.failAt = 2

	results, err := s.engine.Transaction(h, []entities.Operation{
		entities.Write([]byte{0x01}),
		entities.Read(2),
		entities.Write([]byte{0x02}),
	})
	s.Require().Error(err)
	s.Nil(results)

	var de *domainerrors.DeviceError
	s.Require().True(errors.As(err, &de))
	s.Equal("transaction", de.Op)
	s.Equal(2, de.Step)
	s.ErrorIs(err, errBusFault)
	s.Equal(2, de.ToErrorDetail().Step)

	s.Equal([]string{"cs low", "write 1", "read 2", "cs high"}, s.rec.events)
	s.assertPaired()
	s.Equal(uint64(1), s.engine.Stats().Selects)
	s.Equal(used, s.heap.Stats().Used, "partial results released")
}

func (s *EngineSuite) TestTransaction_Empty() {
	h := s.open()

	results, err := s.engine.Transaction(h, nil)
	s.Require().NoError(err)
	s.Empty(results)
	s.Equal([]string{"cs low", "cs high"}, s.rec.events)
}

func (s *EngineSuite) TestTransaction_RejectedBeforeSelect() {
	h := s.open()
	tooLong := make([]byte, entities.DefaultLimits().MaxTransferSize+1)

	tests := []struct {
		name string
		ops  []entities.Operation
		step int
	}{
		{"unknown kind", []entities.Operation{entities.Write([]byte{1}), {Kind: 99}}, 2},
		{"oversized write", []entities.Operation{entities.Write(tooLong)}, 1},
		{"oversized read", []entities.Operation{entities.DelayNs(1), entities.Read(uint64(len(tooLong)))}, 2},
		{"too many ops", make([]entities.Operation, entities.DefaultLimits().MaxTransactionOps+1), 0},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.engine.Transaction(h, tt.ops)
			var de *domainerrors.DeviceError
			s.Require().True(errors.As(err, &de))
			s.Equal(tt.step, de.Step)
			s.Empty(s.rec.events)
		})
	}
}

func (s *EngineSuite) TestTransaction_ScratchExhaustion() {
	h, err := heap.New(128)
	s.Require().NoError(err)
	engine, err := New(h, s.bus, s.cs)
	s.Require().NoError(err)
	handle, err := engine.Open("spi0")
	s.Require().NoError(err)
	s.rec.events = nil

	_, err = engine.Transaction(handle, []entities.Operation{
		entities.Read(64),
		entities.Read(64),
	})
	s.Require().ErrorIs(err, domainerrors.ErrOutOfMemory)

	var de *domainerrors.DeviceError
	s.Require().True(errors.As(err, &de))
	s.Equal(2, de.Step)
	s.Equal("OUT_OF_MEMORY", de.ToErrorDetail().Code)
	s.Equal([]string{"cs low", "read 64", "cs high"}, s.rec.events)
	s.Equal(uint32(32), h.Stats().Used, "only the handle record remains")
}

func (s *EngineSuite) TestTransaction_PanicReleasesSelect() {
	h := s.open()
	s.bus.failAt = 2
	s.bus.panicMsg = "driver crashed"
	used := s.heap.Stats().Used

	s.Panics(func() {
		_, _ = s.engine.Transaction(h, []entities.Operation{entities.Read(2), entities.Read(2)})
	})
	s.assertPaired()
	s.Equal(used, s.heap.Stats().Used)
}
