package modbus

import (
	"fmt"
	"math"

	"github.com/GoomerJaspartap/diagnostic-controller/internal/types"
)

// FunctionCodeFor picks the read function code for the configured register
// kind, honoring an explicitly configured code when it is a register read.
func FunctionCodeFor(p types.ModbusParams) (uint8, error) {
	switch p.FunctionCode {
	case FuncCodeReadHoldingRegisters, FuncCodeReadInputRegisters:
		return p.FunctionCode, nil
	case 0:
	default:
		return 0, fmt.Errorf("unsupported function code %d", p.FunctionCode)
	}

	switch p.RegisterKind {
	case types.RegisterKindHolding:
		return FuncCodeReadHoldingRegisters, nil
	case types.RegisterKindInput:
		return FuncCodeReadInputRegisters, nil
	}
	return 0, fmt.Errorf("unsupported register type %q", p.RegisterKind)
}

// DecodeRegisters converts raw registers to a float64 per the declared data
// type and byte order, then applies scaling and offset. Words are big-endian
// on the wire; byte order selects how words are assembled into wider values:
// little-endian reverses word order, word-swapped exchanges the 16-bit pairs
// (32-bit) or 32-bit halves (64-bit).
func DecodeRegisters(registers []uint16, p types.ModbusParams) (float64, error) {
	want := p.DataType.Registers()
	if want == 0 {
		return 0, fmt.Errorf("unsupported data type %q", p.DataType)
	}
	if len(registers) < int(want) {
		return 0, fmt.Errorf("short register response: got %d registers, need %d", len(registers), want)
	}
	regs := registers[:want]

	var raw float64
	switch p.DataType {
	case types.DataTypeInt16:
		raw = float64(int16(regs[0]))
	case types.DataTypeInt32:
		bits, err := assemble32(regs, p.ByteOrder)
		if err != nil {
			return 0, err
		}
		raw = float64(int32(bits))
	case types.DataTypeFloat32:
		bits, err := assemble32(regs, p.ByteOrder)
		if err != nil {
			return 0, err
		}
		raw = float64(math.Float32frombits(bits))
	case types.DataTypeInt64:
		bits, err := assemble64(regs, p.ByteOrder)
		if err != nil {
			return 0, err
		}
		raw = float64(int64(bits))
	case types.DataTypeFloat64:
		bits, err := assemble64(regs, p.ByteOrder)
		if err != nil {
			return 0, err
		}
		raw = math.Float64frombits(bits)
	}

	return raw*p.Scaling + p.Offset, nil
}

func assemble32(regs []uint16, order types.ByteOrder) (uint32, error) {
	switch order {
	case types.ByteOrderBigEndian:
		return uint32(regs[0])<<16 | uint32(regs[1]), nil
	case types.ByteOrderLittleEndian, types.ByteOrderWordSwapped:
		return uint32(regs[1])<<16 | uint32(regs[0]), nil
	}
	return 0, fmt.Errorf("unsupported byte order %q", order)
}

func assemble64(regs []uint16, order types.ByteOrder) (uint64, error) {
	switch order {
	case types.ByteOrderBigEndian:
		return uint64(regs[0])<<48 | uint64(regs[1])<<32 | uint64(regs[2])<<16 | uint64(regs[3]), nil
	case types.ByteOrderLittleEndian:
		return uint64(regs[3])<<48 | uint64(regs[2])<<32 | uint64(regs[1])<<16 | uint64(regs[0]), nil
	case types.ByteOrderWordSwapped:
		return uint64(regs[2])<<48 | uint64(regs[3])<<32 | uint64(regs[0])<<16 | uint64(regs[1]), nil
	}
	return 0, fmt.Errorf("unsupported byte order %q", order)
}
