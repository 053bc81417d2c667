// Package neura defines the dataflow dialect targeted by the CGRA backend:
// arithmetic, control-flow terminators, merge (phi) nodes, placeholder
// reservations and the two flavours of move.
package neura

import (
	"fmt"
	"go/token"

	"neuraflow/internal/ir"
)

// Namespace is the dialect prefix of every neura operation name.
const Namespace = "neura"

const (
	ConstantOp = "neura.constant"
	AddOp      = "neura.add"
	SubOp      = "neura.sub"
	MulOp      = "neura.mul"
	DivOp      = "neura.div"
	RemOp      = "neura.rem"
	AndOp      = "neura.and"
	OrOp       = "neura.or"
	XorOp      = "neura.xor"
	ShlOp      = "neura.shl"
	ShrOp      = "neura.shr"
	FAddOp     = "neura.fadd"
	FSubOp     = "neura.fsub"
	FMulOp     = "neura.fmul"
	FDivOp     = "neura.fdiv"
	ICmpOp     = "neura.icmp"
	FCmpOp     = "neura.fcmp"
	NegOp      = "neura.neg"
	NotOp      = "neura.not"
	CastOp     = "neura.cast"
	BrOp       = "neura.br"
	CondBrOp   = "neura.cond_br"
	ReturnOp   = "neura.return"
	PhiOp      = "neura.phi"
	ReserveOp  = "neura.reserve"
	CtrlMovOp  = "neura.ctrl_mov"
	DataMovOp  = "neura.data_mov"
)

// SegmentSizesAttr is the attribute splitting cond_br operands into the
// condition, the true-destination arguments and the false-destination
// arguments.
const SegmentSizesAttr = "operand_segment_sizes"

var dialect = func() *ir.Dialect {
	d := ir.NewDialect(Namespace)
	pure := []string{
		ConstantOp, AddOp, SubOp, MulOp, DivOp, RemOp, AndOp, OrOp, XorOp, ShlOp, ShrOp,
		FAddOp, FSubOp, FMulOp, FDivOp, ICmpOp, FCmpOp, NegOp, NotOp, CastOp,
		PhiOp, DataMovOp,
	}
	for _, name := range pure {
		d.AddOp(name, ir.NoSideEffect)
	}
	d.AddOp(ReserveOp, 0)
	d.AddOp(CtrlMovOp, 0)
	d.AddOp(BrOp, ir.Terminator)
	d.AddOp(CondBrOp, ir.Terminator)
	d.AddOp(ReturnOp, ir.Terminator)
	return d
}()

// Dialect returns the neura dialect definition.
func Dialect() *ir.Dialect { return dialect }

// DataType is a payload type paired with a one-bit predicate channel.
type DataType struct {
	Value     ir.Type
	Predicate ir.Type
}

func (t DataType) String() string {
	return fmt.Sprintf("!neura.data<%s, %s>", t.Value, t.Predicate)
}

// Predicated returns the predicated form of t. Already predicated types are
// returned unchanged.
func Predicated(t ir.Type) ir.Type {
	if _, ok := t.(DataType); ok {
		return t
	}
	return DataType{Value: t, Predicate: ir.I1}
}

// Constant materialises value as a constant of type t.
func Constant(b *ir.Builder, loc token.Pos, value ir.Attribute, t ir.Type) *ir.Value {
	state := ir.NewOperationState(ConstantOp, loc).AddAttr("value", value).AddTypes(t)
	return b.Create(state).Result(0)
}

// Binary creates a two-operand arithmetic op.
func Binary(b *ir.Builder, loc token.Pos, name string, lhs, rhs *ir.Value, t ir.Type) *ir.Value {
	state := ir.NewOperationState(name, loc).AddOperands(lhs, rhs).AddTypes(t)
	return b.Create(state).Result(0)
}

// Compare creates an icmp or fcmp with the given predicate.
func Compare(b *ir.Builder, loc token.Pos, name, predicate string, lhs, rhs *ir.Value) *ir.Value {
	state := ir.NewOperationState(name, loc).
		AddOperands(lhs, rhs).
		AddAttr("predicate", ir.StringAttr(predicate)).
		AddTypes(ir.I1)
	return b.Create(state).Result(0)
}

// Unary creates a one-operand op such as neg, not or cast.
func Unary(b *ir.Builder, loc token.Pos, name string, x *ir.Value, t ir.Type) *ir.Value {
	state := ir.NewOperationState(name, loc).AddOperands(x).AddTypes(t)
	return b.Create(state).Result(0)
}

// Br creates an unconditional branch passing args to dest.
func Br(b *ir.Builder, loc token.Pos, dest *ir.Block, args ...*ir.Value) *ir.Operation {
	state := ir.NewOperationState(BrOp, loc).AddOperands(args...).AddSuccessors(dest)
	return b.Create(state)
}

// CondBr creates a conditional branch.
func CondBr(b *ir.Builder, loc token.Pos, cond *ir.Value, trueDest *ir.Block, trueArgs []*ir.Value, falseDest *ir.Block, falseArgs []*ir.Value) *ir.Operation {
	state := ir.NewOperationState(CondBrOp, loc).
		AddOperands(cond).
		AddOperands(trueArgs...).
		AddOperands(falseArgs...).
		AddAttr(SegmentSizesAttr, ir.DenseI32ArrayAttr{1, int32(len(trueArgs)), int32(len(falseArgs))}).
		AddSuccessors(trueDest, falseDest)
	return b.Create(state)
}

// Return creates a function return.
func Return(b *ir.Builder, loc token.Pos, vals ...*ir.Value) *ir.Operation {
	return b.Create(ir.NewOperationState(ReturnOp, loc).AddOperands(vals...))
}

// Phi creates a merge node over incoming with result type t.
func Phi(b *ir.Builder, loc token.Pos, t ir.Type, incoming []*ir.Value) *ir.Value {
	state := ir.NewOperationState(PhiOp, loc).AddOperands(incoming...).AddTypes(t)
	return b.Create(state).Result(0)
}

// Reserve creates a placeholder value of type t.
func Reserve(b *ir.Builder, loc token.Pos, t ir.Type) *ir.Value {
	return b.Create(ir.NewOperationState(ReserveOp, loc).AddTypes(t)).Result(0)
}

// CtrlMov writes value into the placeholder target.
func CtrlMov(b *ir.Builder, loc token.Pos, value, target *ir.Value) *ir.Operation {
	return b.Create(ir.NewOperationState(CtrlMovOp, loc).AddOperands(value, target))
}

// DataMov creates an explicit interconnect transfer of value.
func DataMov(b *ir.Builder, loc token.Pos, value *ir.Value) *ir.Value {
	state := ir.NewOperationState(DataMovOp, loc).AddOperands(value).AddTypes(value.Type())
	return b.Create(state).Result(0)
}

// IsBranch reports whether op is a br or cond_br.
func IsBranch(op *ir.Operation) bool {
	return op.Is(BrOp) || op.Is(CondBrOp)
}

// IsDataMovResult reports whether v is produced by a data_mov.
func IsDataMovResult(v *ir.Value) bool {
	return v != nil && v.DefiningOp().Is(DataMovOp)
}

// CondBrCondition returns the branch condition of a cond_br.
func CondBrCondition(op *ir.Operation) *ir.Value {
	return op.Operand(0)
}

// SuccessorOperands returns the values a branch passes along successor slot
// index. ok is false when op is not a br or cond_br, or the slot does not
// exist.
func SuccessorOperands(op *ir.Operation, index int) (args []*ir.Value, ok bool) {
	if index < 0 || index >= op.NumSuccessors() {
		return nil, false
	}
	switch op.Name() {
	case BrOp:
		return op.Operands(), true
	case CondBrOp:
		nTrue, nFalse, ok := condBrSegments(op)
		if !ok {
			return nil, false
		}
		operands := op.Operands()
		if index == 0 {
			return operands[1 : 1+nTrue], true
		}
		return operands[1+nTrue : 1+nTrue+nFalse], true
	default:
		return nil, false
	}
}

func condBrSegments(op *ir.Operation) (nTrue, nFalse int, ok bool) {
	seg, isSeg := op.Attr(SegmentSizesAttr).(ir.DenseI32ArrayAttr)
	if !isSeg || len(seg) != 3 {
		return 0, 0, false
	}
	nTrue, nFalse = int(seg[1]), int(seg[2])
	if 1+nTrue+nFalse != op.NumOperands() {
		return 0, 0, false
	}
	return nTrue, nFalse, true
}
