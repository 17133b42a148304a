// Package batch parses the atomic batch frame carried by opcode 255.
//
// Wire format:
//
//	[count:1] ( [window:1][len:1][account indices:window][payload:len] ) x count
//
// The whole frame is parsed and validated before any sub-operation runs.
package batch

import (
	"fmt"

	"github.com/danmuck/reservectl/internal/protocol"
)

const (
	MinCount = 1
	MaxCount = 10
)

// SubOp is one decoded sub-operation.
type SubOp struct {
	Index          int
	AccountIndices []uint8
	Payload        []byte
}

// Opcode returns the sub-operation's selector byte.
func (s SubOp) Opcode() protocol.Opcode {
	return protocol.Opcode(s.Payload[0])
}

// Parse decodes a batch body (the bytes after the 255 selector).
func Parse(data []byte) ([]SubOp, error) {
	c := protocol.NewCursor(data)
	count, err := c.U8()
	if err != nil {
		return nil, fail("empty batch")
	}
	if count < MinCount || count > MaxCount {
		return nil, fail("batch count %d outside %d..%d", count, MinCount, MaxCount)
	}

	ops := make([]SubOp, 0, count)
	for i := 0; i < int(count); i++ {
		window, err := c.U8()
		if err != nil {
			return nil, fail("sub-operation %d header truncated", i)
		}
		length, err := c.U8()
		if err != nil {
			return nil, fail("sub-operation %d header truncated", i)
		}
		indices, err := c.Next(int(window))
		if err != nil {
			return nil, fail("sub-operation %d account window truncated", i)
		}
		payload, err := c.Next(int(length))
		if err != nil {
			return nil, fail("sub-operation %d payload truncated", i)
		}
		if len(payload) == 0 {
			return nil, fail("sub-operation %d has empty payload", i)
		}
		op := protocol.Opcode(payload[0])
		if op == protocol.OpBatch {
			return nil, fail("sub-operation %d: nested batching not allowed", i)
		}
		if !protocol.BatchAllowed(op) {
			return nil, fail("sub-operation %d: %s not allowed in batch", i, op)
		}
		ops = append(ops, SubOp{
			Index:          i,
			AccountIndices: append([]uint8(nil), indices...),
			Payload:        append([]byte(nil), payload...),
		})
	}
	if c.Remaining() != 0 {
		return nil, fail("%d trailing bytes after %d sub-operations", c.Remaining(), count)
	}
	return ops, nil
}

// Encode builds a batch body from sub-operations. Indices and payload lengths
// above 255 are rejected.
func Encode(ops []SubOp) ([]byte, error) {
	if len(ops) < MinCount || len(ops) > MaxCount {
		return nil, fail("batch count %d outside %d..%d", len(ops), MinCount, MaxCount)
	}
	w := protocol.NewWriter(64)
	w.U8(uint8(len(ops)))
	for i, op := range ops {
		if len(op.AccountIndices) > 0xFF || len(op.Payload) > 0xFF {
			return nil, fail("sub-operation %d too large", i)
		}
		w.U8(uint8(len(op.AccountIndices))).U8(uint8(len(op.Payload)))
		w.Raw(op.AccountIndices).Raw(op.Payload)
	}
	return w.Bytes(), nil
}

func fail(format string, args ...any) error {
	return fmt.Errorf("%w: %s", protocol.ErrInvalidInstructionData, fmt.Sprintf(format, args...))
}
