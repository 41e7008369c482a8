package interp

import "solidc/internal/ir"

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

// evalBinOp applies op to two operands of equal byte width, wrapping on
// overflow the way fixed-width two's-complement arithmetic does.
// Comparisons are always performed unsigned and yield a single byte
// (spec §5). Operands of differing width are a no-op that yields void —
// the robust-evaluation policy for a malformed comp stream.
func evalBinOp(op ir.BinOpKind, lhs, rhs []byte) []byte {
	if len(lhs) != len(rhs) {
		return nil
	}
	switch len(lhs) {
	case 1:
		return binOp8(op, lhs[0], rhs[0])
	case 2:
		return binOp16(op, u16(lhs), u16(rhs))
	case 4:
		return binOp32(op, u32(lhs), u32(rhs))
	case 8:
		return binOp64(op, u64(lhs), u64(rhs))
	default:
		return nil
	}
}

func binOp8(op ir.BinOpKind, l, r uint8) []byte {
	switch op {
	case ir.Plus:
		return []byte{l + r}
	case ir.Minus:
		return []byte{l - r}
	case ir.Mul:
		return []byte{l * r}
	case ir.Div:
		return []byte{l / r}
	case ir.Mod:
		return []byte{l % r}
	case ir.BitAnd:
		return []byte{l & r}
	case ir.BitOr:
		return []byte{l | r}
	case ir.BitLShift:
		return []byte{l << r}
	case ir.BitRShift:
		return []byte{l >> r}
	case ir.Equal:
		return boolByte(l == r)
	case ir.NotEqual:
		return boolByte(l != r)
	case ir.Greater:
		return boolByte(l > r)
	case ir.Lesser:
		return boolByte(l < r)
	case ir.GreaterEqual:
		return boolByte(l >= r)
	case ir.LesserEqual:
		return boolByte(l <= r)
	}
	return nil
}

func binOp16(op ir.BinOpKind, l, r uint16) []byte {
	switch op {
	case ir.Plus:
		return from16(l + r)
	case ir.Minus:
		return from16(l - r)
	case ir.Mul:
		return from16(l * r)
	case ir.Div:
		return from16(l / r)
	case ir.Mod:
		return from16(l % r)
	case ir.BitAnd:
		return from16(l & r)
	case ir.BitOr:
		return from16(l | r)
	case ir.BitLShift:
		return from16(l << r)
	case ir.BitRShift:
		return from16(l >> r)
	case ir.Equal:
		return boolByte(l == r)
	case ir.NotEqual:
		return boolByte(l != r)
	case ir.Greater:
		return boolByte(l > r)
	case ir.Lesser:
		return boolByte(l < r)
	case ir.GreaterEqual:
		return boolByte(l >= r)
	case ir.LesserEqual:
		return boolByte(l <= r)
	}
	return nil
}

func binOp32(op ir.BinOpKind, l, r uint32) []byte {
	switch op {
	case ir.Plus:
		return from32(l + r)
	case ir.Minus:
		return from32(l - r)
	case ir.Mul:
		return from32(l * r)
	case ir.Div:
		return from32(l / r)
	case ir.Mod:
		return from32(l % r)
	case ir.BitAnd:
		return from32(l & r)
	case ir.BitOr:
		return from32(l | r)
	case ir.BitLShift:
		return from32(l << r)
	case ir.BitRShift:
		return from32(l >> r)
	case ir.Equal:
		return boolByte(l == r)
	case ir.NotEqual:
		return boolByte(l != r)
	case ir.Greater:
		return boolByte(l > r)
	case ir.Lesser:
		return boolByte(l < r)
	case ir.GreaterEqual:
		return boolByte(l >= r)
	case ir.LesserEqual:
		return boolByte(l <= r)
	}
	return nil
}

func binOp64(op ir.BinOpKind, l, r uint64) []byte {
	switch op {
	case ir.Plus:
		return from64(l + r)
	case ir.Minus:
		return from64(l - r)
	case ir.Mul:
		return from64(l * r)
	case ir.Div:
		return from64(l / r)
	case ir.Mod:
		return from64(l % r)
	case ir.BitAnd:
		return from64(l & r)
	case ir.BitOr:
		return from64(l | r)
	case ir.BitLShift:
		return from64(l << r)
	case ir.BitRShift:
		return from64(l >> r)
	case ir.Equal:
		return boolByte(l == r)
	case ir.NotEqual:
		return boolByte(l != r)
	case ir.Greater:
		return boolByte(l > r)
	case ir.Lesser:
		return boolByte(l < r)
	case ir.GreaterEqual:
		return boolByte(l >= r)
	case ir.LesserEqual:
		return boolByte(l <= r)
	}
	return nil
}

// evalUnOp applies op to a single operand. BoolNot is only meaningful on
// a 1-byte bool; the original leaves it void at every other width, which
// this preserves.
func evalUnOp(op ir.UnOpKind, v []byte) []byte {
	switch len(v) {
	case 1:
		switch op {
		case ir.BoolNot:
			return boolByte(v[0] == 0)
		case ir.SignedNegation:
			return []byte{uint8(-int8(v[0]))}
		case ir.BitNot:
			return []byte{^v[0]}
		}
	case 2:
		switch op {
		case ir.SignedNegation:
			return from16(uint16(-int16(u16(v))))
		case ir.BitNot:
			return from16(^u16(v))
		}
	case 4:
		switch op {
		case ir.SignedNegation:
			return from32(uint32(-int32(u32(v))))
		case ir.BitNot:
			return from32(^u32(v))
		}
	case 8:
		switch op {
		case ir.SignedNegation:
			return from64(uint64(-int64(u64(v))))
		case ir.BitNot:
			return from64(^u64(v))
		}
	}
	return nil
}

func u16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func u32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func u64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func from16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func from32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
func from64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
