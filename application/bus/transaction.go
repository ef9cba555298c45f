package bus

import (
	"fmt"

	"github.com/wasmpico/picohost/domain/entities"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
)

// Transaction runs ops in order under a single select envelope. If step k
// fails the line is released, partial results are discarded and the step's
// error is returned. Ops are checked before the line is asserted, so a
// malformed transaction never touches the bus.
func (e *Engine) Transaction(h entities.Handle, ops []entities.Operation) ([]entities.OperationResult, error) {
	if err := e.prepare(h, "transaction", 0); err != nil {
		return nil, e.fail(err)
	}
	if err := e.checkOps(ops); err != nil {
		return nil, e.fail(err)
	}

	var frees []func()
	defer func() {
		for _, free := range frees {
			free()
		}
	}()
	alloc := func(n uint32) ([]byte, error) {
		buf, free, err := e.scratch(n)
		if err != nil {
			return nil, err
		}
		frees = append(frees, free)
		return buf, nil
	}

	results := make([]entities.OperationResult, 0, len(ops))
	err := e.withSelected("transaction", func() error {
		for i, op := range ops {
			res, err := e.runStep(op, alloc)
			if err != nil {
				return &domainerrors.DeviceError{
					Op:      "transaction",
					Step:    i + 1,
					Message: fmt.Sprintf("%s error", op.Kind),
					Err:     err,
				}
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(err)
	}

	for i := range results {
		if results[i].Data != nil {
			results[i].Data = append([]byte(nil), results[i].Data...)
		}
	}
	return results, nil
}

// runStep executes one op inside an open envelope. Receive buffers come from
// alloc and stay valid until the transaction returns.
func (e *Engine) runStep(op entities.Operation, alloc func(uint32) ([]byte, error)) (entities.OperationResult, error) {
	res := entities.OperationResult{Kind: op.Kind}

	switch op.Kind {
	case entities.OpRead:
		if op.Len == 0 {
			res.Data = []byte{}
			return res, nil
		}
		buf, err := alloc(uint32(op.Len)) //nolint:gosec // G115: bounded by checkOps
		if err != nil {
			return res, err
		}
		res.Data = buf
		return res, e.bus.Read(buf)

	case entities.OpWrite:
		if len(op.Data) == 0 {
			return res, nil
		}
		return res, e.bus.Write(op.Data)

	case entities.OpTransfer:
		if len(op.Data) == 0 {
			res.Data = []byte{}
			return res, nil
		}
		buf, err := alloc(uint32(len(op.Data))) //nolint:gosec // G115: bounded by checkOps
		if err != nil {
			return res, err
		}
		res.Data = buf
		return res, e.bus.Transfer(buf, op.Data)

	case entities.OpDelayNs:
		e.delay.DelayNs(op.Nanos)
		return res, nil
	}
	return res, fmt.Errorf("unknown operation kind %d", op.Kind)
}

func (e *Engine) checkOps(ops []entities.Operation) error {
	if uint64(len(ops)) > uint64(e.limits.MaxTransactionOps) {
		return &domainerrors.DeviceError{
			Op:      "transaction",
			Message: fmt.Sprintf("%d operations exceeds the limit of %d", len(ops), e.limits.MaxTransactionOps),
		}
	}

	limit := uint64(e.limits.MaxTransferSize)
	for i, op := range ops {
		var n uint64
		switch op.Kind {
		case entities.OpRead:
			n = op.Len
		case entities.OpWrite, entities.OpTransfer:
			n = uint64(len(op.Data))
		case entities.OpDelayNs:
		default:
			return &domainerrors.DeviceError{Op: "transaction", Step: i + 1, Message: fmt.Sprintf("unknown operation %s", op.Kind)}
		}
		if n > limit {
			return &domainerrors.DeviceError{
				Op:      "transaction",
				Step:    i + 1,
				Message: fmt.Sprintf("%s of %d bytes exceeds the %d byte transfer limit", op.Kind, n, limit),
			}
		}
	}
	return nil
}
