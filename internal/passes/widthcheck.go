package passes

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"neuraflow/internal/ir"
	"neuraflow/internal/neura"
)

// VerifyWidthsName is the pipeline name of the width consistency check.
const VerifyWidthsName = "verify-widths"

func init() {
	Register(VerifyWidthsName,
		"Check that operand and result widths of neura operations agree.",
		func(opts Options) Pass { return NewWidthCheck(opts) })
}

// WidthCheck reports neura operations whose operand and result types
// disagree. Predicated types are compared by their payload, so the check
// holds both before and after the dataflow conversion.
type WidthCheck struct {
	opts   Options
	errors int
}

// NewWidthCheck constructs the pass.
func NewWidthCheck(opts Options) *WidthCheck {
	return &WidthCheck{opts: opts}
}

func (w *WidthCheck) Name() string { return VerifyWidthsName }

func (w *WidthCheck) Description() string {
	return "Check that operand and result widths of neura operations agree."
}

func (w *WidthCheck) DependentDialects() []string {
	return []string{neura.Namespace}
}

// Run checks every function of module.
func (w *WidthCheck) Run(ctx context.Context, irctx *ir.Context, module *ir.Operation) error {
	if err := requireDialects(irctx, w); err != nil {
		return err
	}
	w.errors = 0
	for _, fn := range ir.Funcs(module) {
		results := funcResults(fn)
		ir.Walk(fn, func(op *ir.Operation) {
			w.visit(op, results)
		})
	}
	if w.errors > 0 {
		return errors.Errorf("width check reported %d error(s)", w.errors)
	}
	return nil
}

func (w *WidthCheck) visit(op *ir.Operation, results []ir.Type) {
	switch op.Name() {
	case neura.AddOp, neura.SubOp, neura.MulOp, neura.DivOp, neura.RemOp,
		neura.AndOp, neura.OrOp, neura.XorOp,
		neura.FAddOp, neura.FSubOp, neura.FMulOp, neura.FDivOp:
		w.sameAsResult(op, op.Operand(0), op.Operand(1))
	case neura.ShlOp, neura.ShrOp:
		// The shift amount keeps its own width.
		w.sameAsResult(op, op.Operand(0))
	case neura.NegOp, neura.NotOp, neura.DataMovOp:
		w.sameAsResult(op, op.Operand(0))
	case neura.ICmpOp, neura.FCmpOp:
		lhs, rhs := payload(op.Operand(0).Type()), payload(op.Operand(1).Type())
		if !sameType(lhs, rhs) {
			w.report(op, "compare operands have mismatched widths (%s vs %s)", lhs, rhs)
		}
		w.isBool(op, op.Result(0).Type(), "compare result")
	case neura.PhiOp:
		w.sameAsResult(op, op.Operands()...)
	case neura.CtrlMovOp:
		val, target := payload(op.Operand(0).Type()), payload(op.Operand(1).Type())
		if !sameType(val, target) {
			w.report(op, "ctrl_mov writes %s into a %s placeholder", val, target)
		}
	case neura.CondBrOp:
		w.isBool(op, neura.CondBrCondition(op).Type(), "branch condition")
		w.successorArgs(op)
	case neura.BrOp:
		w.successorArgs(op)
	case neura.ReturnOp:
		if op.NumOperands() != len(results) {
			w.report(op, "returns %d value(s), function declares %d", op.NumOperands(), len(results))
			return
		}
		for i, v := range op.Operands() {
			if got := payload(v.Type()); !sameType(got, results[i]) {
				w.report(op, "return value #%d is %s, function declares %s", i, got, results[i])
			}
		}
	}
}

func (w *WidthCheck) sameAsResult(op *ir.Operation, operands ...*ir.Value) {
	want := payload(op.Result(0).Type())
	for i, v := range operands {
		if got := payload(v.Type()); !sameType(got, want) {
			w.report(op, "operand #%d is %s but the result is %s; add an explicit conversion", i, got, want)
		}
	}
}

func (w *WidthCheck) isBool(op *ir.Operation, t ir.Type, what string) {
	if !sameType(payload(t), ir.I1) {
		w.report(op, "%s must be i1, got %s", what, t)
	}
}

func (w *WidthCheck) successorArgs(op *ir.Operation) {
	for i, dest := range op.Successors() {
		args, ok := neura.SuccessorOperands(op, i)
		if !ok {
			w.report(op, "malformed successor operands for slot %d", i)
			continue
		}
		if len(args) != dest.NumArguments() {
			w.report(op, "passes %d value(s) to %s, which takes %d", len(args), ir.BlockName(dest), dest.NumArguments())
			continue
		}
		for j, a := range args {
			got, want := payload(a.Type()), payload(dest.Argument(j).Type())
			if !sameType(got, want) {
				w.report(op, "argument #%d to %s is %s, block expects %s", j, ir.BlockName(dest), got, want)
			}
		}
	}
}

func (w *WidthCheck) report(op *ir.Operation, format string, args ...any) {
	w.errors++
	w.opts.Reporter.Error(op.Loc, op.Name()+": "+fmt.Sprintf(format, args...))
}

func funcResults(fn *ir.Operation) []ir.Type {
	if ta, ok := fn.Attr("function_type").(ir.TypeAttr); ok {
		if ft, ok := ta.Type.(ir.FunctionType); ok {
			return ft.Results
		}
	}
	return nil
}

// payload strips the predicate channel from a predicated type.
func payload(t ir.Type) ir.Type {
	if dt, ok := t.(neura.DataType); ok {
		return dt.Value
	}
	return t
}

func sameType(a, b ir.Type) bool {
	return a.String() == b.String()
}
