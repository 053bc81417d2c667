package validate

import (
	"fmt"
	"go/token"
	"go/types"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/ssa"

	"neuraflow/internal/diag"
	"neuraflow/internal/frontend"
)

// CheckProgram validates that every kernel of the main package only uses the
// subset of Go the dataflow lowering understands: scalar arithmetic,
// comparisons, conversions and structured control flow.
func CheckProgram(prog *ssa.Program, pkgs []*ssa.Package, reporter *diag.Reporter) error {
	if prog == nil {
		return errors.New("no SSA program provided for validation")
	}
	if reporter == nil {
		return errors.New("no reporter provided for validation")
	}
	mainPkg := frontend.MainPackage(pkgs)
	if mainPkg == nil {
		return errors.New("no main package found")
	}

	c := &checker{reporter: reporter}
	for _, fn := range frontend.Kernels(mainPkg) {
		c.checkFunction(fn)
	}
	if c.errCount > 0 {
		return errors.Errorf("validation failed with %d issue(s)", c.errCount)
	}
	return nil
}

type checker struct {
	reporter *diag.Reporter
	errCount int
}

func (c *checker) checkFunction(fn *ssa.Function) {
	sig := fn.Signature
	for i := 0; i < sig.Params().Len(); i++ {
		param := sig.Params().At(i)
		if _, ok := frontend.IRType(param.Type()); !ok {
			c.error(param.Pos(), "parameter %s of %s has unsupported type %s", param.Name(), fn.Name(), param.Type())
		}
	}
	for i := 0; i < sig.Results().Len(); i++ {
		res := sig.Results().At(i)
		if _, ok := frontend.IRType(res.Type()); !ok {
			c.error(fn.Pos(), "result %d of %s has unsupported type %s", i, fn.Name(), res.Type())
		}
	}
	if sig.Recv() != nil {
		c.error(fn.Pos(), "methods are not supported; make %s a plain function", fn.Name())
	}

	for _, block := range fn.Blocks {
		if block == nil {
			continue
		}
		for _, instr := range block.Instrs {
			c.inspectInstruction(fn, instr)
		}
	}
}

func (c *checker) inspectInstruction(fn *ssa.Function, instr ssa.Instruction) {
	switch inst := instr.(type) {
	case *ssa.Jump, *ssa.If, *ssa.Return, *ssa.DebugRef:
		return
	case *ssa.Phi, *ssa.Convert, *ssa.ChangeType:
		c.checkValueType(inst.(ssa.Value))
	case *ssa.BinOp:
		c.checkBinOp(inst)
	case *ssa.UnOp:
		c.checkUnOp(inst)
	case *ssa.Go:
		c.error(inst.Pos(), "goroutines are not supported in dataflow kernels")
	case *ssa.MakeChan, *ssa.Send:
		c.error(instr.Pos(), "channels are not supported in dataflow kernels")
	case *ssa.Select:
		c.error(inst.Pos(), "select statements are not supported")
	case *ssa.MakeMap, *ssa.MapUpdate, *ssa.Lookup:
		c.error(instr.Pos(), "maps are not supported in dataflow kernels")
	case *ssa.Range, *ssa.Next:
		c.error(instr.Pos(), "range loops over maps or strings are not supported; use an indexed loop")
	case *ssa.Defer, *ssa.RunDefers:
		c.error(instr.Pos(), "defer is not supported")
	case *ssa.MakeClosure:
		c.error(inst.Pos(), "closures are not supported; hoist %s to a top-level function", describeValue(inst.Fn))
	case *ssa.Call:
		c.checkCall(fn, inst)
	case *ssa.Panic:
		c.error(inst.Pos(), "panics are not supported")
	case *ssa.Alloc, *ssa.Store, *ssa.FieldAddr, *ssa.IndexAddr, *ssa.Field, *ssa.Index, *ssa.Slice:
		c.error(instr.Pos(), "memory operations are not supported; kernels may only use scalar values")
	default:
		c.error(instr.Pos(), "%s instructions are not supported", describeInstr(instr))
	}
}

func (c *checker) checkCall(current *ssa.Function, call *ssa.Call) {
	if call.Call.IsInvoke() {
		c.error(call.Pos(), "interface method calls are not supported")
		return
	}
	callee := call.Call.StaticCallee()
	if callee != nil && callee == current {
		c.error(call.Pos(), "recursion is not supported; refactor %s to an iterative form", current.Name())
		return
	}
	if b, ok := call.Call.Value.(*ssa.Builtin); ok {
		c.error(call.Pos(), "builtin %s is not supported", b.Name())
		return
	}
	c.error(call.Pos(), "function calls are not supported; inline %s into the kernel", describeValue(call.Call.Value))
}

func (c *checker) checkBinOp(op *ssa.BinOp) {
	if op.Op == token.AND_NOT {
		c.error(op.Pos(), "operator &^ is not supported; use & with a complemented operand")
		return
	}
	if _, ok := frontend.IRType(op.X.Type()); !ok {
		c.error(op.Pos(), "operands of type %s are not supported", op.X.Type())
		return
	}
	c.checkValueType(op)
}

func (c *checker) checkUnOp(op *ssa.UnOp) {
	switch op.Op {
	case token.SUB, token.NOT, token.XOR:
		c.checkValueType(op)
	case token.ARROW:
		c.error(op.Pos(), "channels are not supported in dataflow kernels")
	case token.MUL:
		c.error(op.Pos(), "memory operations are not supported; kernels may only use scalar values")
	default:
		c.error(op.Pos(), "unary operator %s is not supported", op.Op)
	}
}

func (c *checker) checkValueType(v ssa.Value) {
	if _, ok := frontend.IRType(v.Type()); !ok {
		c.error(v.Pos(), "values of type %s are not supported", v.Type())
	}
}

func (c *checker) error(pos token.Pos, format string, args ...any) {
	c.errCount++
	c.reporter.Error(pos, fmt.Sprintf(format, args...))
}

func describeValue(v ssa.Value) string {
	if v == nil {
		return "<nil>"
	}
	if fn, ok := v.(*ssa.Function); ok {
		return fn.Name()
	}
	return fmt.Sprintf("%T", v)
}

func describeInstr(instr ssa.Instruction) string {
	if v, ok := instr.(ssa.Value); ok && v.Type() != nil {
		if _, isPtr := v.Type().Underlying().(*types.Pointer); isPtr {
			return "pointer-producing"
		}
	}
	return fmt.Sprintf("%T", instr)
}
