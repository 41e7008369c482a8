// Package interp executes an ir.Module directly, without compiling it to
// machine code: a small stack-based interpreter matching spec §5's
// evaluation rules. Grounded on original_source/ir/interpreter/mod.rs,
// translated from that file's raw unsafe-pointer arena into a bounds-free
// but GC-safe byte-slice heap — idiomatic Go avoids carrying live
// addresses derived from Go-managed memory across calls, so pointers here
// are 1-based handles into Interpreter.heap rather than real addresses;
// every other behavior (wrapping arithmetic, frame-scoped release on
// return, mismatched-width binops yielding void) is unchanged.
package interp

import (
	"encoding/binary"

	"solidc/internal/ir"
	"solidc/internal/sess"
	"solidc/internal/solerr"
)

// MaxCallDepth bounds recursive FunctionCall evaluation. The original
// lets the host stack overflow; Go would do the same uncontrolled, so
// this turns runaway recursion into an InterpreterError instead of a
// crashed process.
const MaxCallDepth = 4096

type Interpreter struct {
	functions map[sess.Symbol]*ir.Function
	heap      [][]byte
	frames    []int // allocation count per live call frame, LIFO
	depth     int
}

func New() *Interpreter {
	return &Interpreter{functions: make(map[sess.Symbol]*ir.Function)}
}

func (vm *Interpreter) LoadModule(m *ir.Module) {
	for _, fn := range m.Functions {
		vm.functions[fn.Name] = fn
	}
}

func (vm *Interpreter) CallFunction(name sess.Symbol, args [][]byte) ([]byte, error) {
	fn, ok := vm.functions[name]
	if !ok {
		return nil, solerr.New(solerr.InterpreterError, solerr.Location{}, "call to unknown function")
	}
	return vm.callFunction(fn, args)
}

func (vm *Interpreter) callFunction(fn *ir.Function, args [][]byte) ([]byte, error) {
	vm.depth++
	if vm.depth > MaxCallDepth {
		vm.depth--
		return nil, solerr.New(solerr.InterpreterError, solerr.Location{}, "call stack exhausted")
	}
	defer func() { vm.depth-- }()

	values := make(map[sess.Symbol][]byte, len(fn.Params)+len(fn.Comps))
	for i, p := range fn.Params {
		if p.Name.Valid() && i < len(args) {
			values[p.Name] = args[i]
		}
	}

	vm.frames = append(vm.frames, 0)

	idx := 0
	for idx < len(fn.Comps) {
		comp := fn.Comps[idx]
		var result []byte
		var err error
		jumped := false

		switch c := comp.(type) {
		case *ir.FunctionCall:
			callArgs := make([][]byte, len(c.Args))
			for i, a := range c.Args {
				callArgs[i] = values[a.Name]
			}
			result, err = vm.CallFunction(c.Callee, callArgs)

		case *ir.BinaryOp:
			result = evalBinOp(c.Op, values[c.Lhs.Name], values[c.Rhs.Name])

		case *ir.UnaryOp:
			result = evalUnOp(c.Op, values[c.Operand.Name])

		case *ir.Constant:
			result = append([]byte(nil), c.Bytes...)

		case *ir.Alloc:
			buf := make([]byte, c.Type.Size)
			vm.heap = append(vm.heap, buf)
			vm.frames[len(vm.frames)-1]++
			result = encodeU64(uint64(len(vm.heap)))

		case *ir.Store:
			ptr := decodeU64(values[c.Ptr.Name])
			err = vm.writeAt(ptr, 0, values[c.Value.Name], c.Type.Size)

		case *ir.Load:
			ptr := decodeU64(values[c.Ptr.Name])
			result, err = vm.readAt(ptr, 0, c.Type.Size)

		case *ir.OffsetStore:
			ptr := decodeU64(values[c.Ptr.Name])
			err = vm.writeAt(ptr, c.Offset, values[c.Value.Name], c.Type.Size)

		case *ir.OffsetLoad:
			ptr := decodeU64(values[c.Ptr.Name])
			result, err = vm.readAt(ptr, c.Offset, c.Type.Size)

		case *ir.Return:
			v := values[c.Value.Name]
			vm.popFrame()
			return v, nil

		case *ir.If:
			cond := values[c.Cond.Name]
			if len(cond) > 0 && cond[0] != 0 {
				target, ok := fn.Labels[c.Label]
				if !ok {
					err = solerr.New(solerr.InterpreterError, solerr.Location{}, "branch to unknown label")
				} else {
					idx = target
					jumped = true
				}
			}

		case *ir.Jmp:
			target, ok := fn.Labels[c.Label]
			if !ok {
				err = solerr.New(solerr.InterpreterError, solerr.Location{}, "jump to unknown label")
			} else {
				idx = target
				jumped = true
			}
		}

		if err != nil {
			vm.popFrame()
			return nil, err
		}

		if name, ok := ir.Result(comp); ok && name.Valid() {
			values[name] = result
		}

		if !jumped {
			idx++
		}
	}

	vm.popFrame()
	return []byte{}, nil
}

func (vm *Interpreter) popFrame() {
	n := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.heap = vm.heap[:len(vm.heap)-n]
}

func (vm *Interpreter) writeAt(handle, offset uint64, value []byte, size uint64) error {
	buf, err := vm.bufferFor(handle)
	if err != nil {
		return err
	}
	copy(buf[offset:offset+size], value)
	return nil
}

func (vm *Interpreter) readAt(handle, offset, size uint64) ([]byte, error) {
	buf, err := vm.bufferFor(handle)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, buf[offset:offset+size])
	return out, nil
}

func (vm *Interpreter) bufferFor(handle uint64) ([]byte, error) {
	if handle == 0 || handle > uint64(len(vm.heap)) {
		return nil, solerr.New(solerr.InterpreterError, solerr.Location{}, "dereference of invalid pointer")
	}
	return vm.heap[handle-1], nil
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
