package wasm

import (
	"math"

	"github.com/wippyai/wasm-bridge/wasm/internal/binary"
)

// Code assembles a function body instruction by instruction.
//
//	body := wasm.NewCode().LocalGet(0).Call(2).End().Body()
type Code struct {
	w      *binary.Writer
	locals []LocalEntry
}

// NewCode creates an empty body.
func NewCode() *Code {
	return &Code{w: binary.NewWriter()}
}

// Locals declares additional locals after the parameters.
func (c *Code) Locals(count uint32, t ValType) *Code {
	c.locals = append(c.locals, LocalEntry{Count: count, ValType: t})
	return c
}

// Op emits a bare opcode.
func (c *Code) Op(op byte) *Code {
	c.w.Byte(op)
	return c
}

// LocalGet emits local.get.
func (c *Code) LocalGet(idx uint32) *Code { return c.opU32(OpLocalGet, idx) }

// LocalSet emits local.set.
func (c *Code) LocalSet(idx uint32) *Code { return c.opU32(OpLocalSet, idx) }

// LocalTee emits local.tee.
func (c *Code) LocalTee(idx uint32) *Code { return c.opU32(OpLocalTee, idx) }

// GlobalGet emits global.get.
func (c *Code) GlobalGet(idx uint32) *Code { return c.opU32(OpGlobalGet, idx) }

// GlobalSet emits global.set.
func (c *Code) GlobalSet(idx uint32) *Code { return c.opU32(OpGlobalSet, idx) }

// Call emits call.
func (c *Code) Call(funcIdx uint32) *Code { return c.opU32(OpCall, funcIdx) }

// Br emits br.
func (c *Code) Br(label uint32) *Code { return c.opU32(OpBr, label) }

// BrIf emits br_if.
func (c *Code) BrIf(label uint32) *Code { return c.opU32(OpBrIf, label) }

// I32Const emits i32.const.
func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteS32(v)
	return c
}

// I64Const emits i64.const.
func (c *Code) I64Const(v int64) *Code {
	c.w.Byte(OpI64Const)
	c.w.WriteS64(v)
	return c
}

// F64Const emits f64.const.
func (c *Code) F64Const(v float64) *Code {
	c.w.Byte(OpF64Const)
	c.w.WriteU64LE(math.Float64bits(v))
	return c
}

// I32Load emits i32.load with natural alignment.
func (c *Code) I32Load(offset uint32) *Code { return c.memOp(OpI32Load, 2, offset) }

// I32Store emits i32.store with natural alignment.
func (c *Code) I32Store(offset uint32) *Code { return c.memOp(OpI32Store, 2, offset) }

// I32Load16U emits i32.load16_u.
func (c *Code) I32Load16U(offset uint32) *Code { return c.memOp(OpI32Load16U, 1, offset) }

// I32Store16 emits i32.store16.
func (c *Code) I32Store16(offset uint32) *Code { return c.memOp(OpI32Store16, 1, offset) }

// Block opens a void block.
func (c *Code) Block() *Code { return c.blockOp(OpBlock) }

// Loop opens a void loop.
func (c *Code) Loop() *Code { return c.blockOp(OpLoop) }

// If opens a void if.
func (c *Code) If() *Code { return c.blockOp(OpIf) }

// RefNullExtern emits ref.null extern.
func (c *Code) RefNullExtern() *Code {
	c.w.Byte(OpRefNull)
	c.w.Byte(byte(ValExtern))
	return c
}

// End emits end.
func (c *Code) End() *Code { return c.Op(OpEnd) }

// Body returns the assembled function body. The caller terminates it with End.
func (c *Code) Body() FuncBody {
	code := make([]byte, c.w.Len())
	copy(code, c.w.Bytes())
	return FuncBody{Locals: c.locals, Code: code}
}

func (c *Code) opU32(op byte, v uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(v)
	return c
}

func (c *Code) memOp(op byte, align, offset uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(align)
	c.w.WriteU32(offset)
	return c
}

func (c *Code) blockOp(op byte) *Code {
	c.w.Byte(op)
	c.w.Byte(BlockTypeVoid)
	return c
}
