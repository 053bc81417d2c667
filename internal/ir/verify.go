package ir

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidIR is wrapped by every structural verification failure.
	ErrInvalidIR = errors.New("invalid IR")
	// ErrUseBeforeDef is wrapped when a single-block body is not in
	// topological order.
	ErrUseBeforeDef = errors.New("use before definition")
)

// Verify checks the structural invariants of op and everything nested in it.
func Verify(op *Operation) error {
	var err error
	Walk(op, func(o *Operation) {
		if err != nil {
			return
		}
		err = verifyOp(o)
	})
	return err
}

func verifyOp(op *Operation) error {
	if op.erased {
		return errors.Wrapf(ErrInvalidIR, "%s: operation is erased but still reachable", op.name)
	}
	for i, o := range op.operands {
		v := o.value
		if v == nil {
			return errors.Wrapf(ErrInvalidIR, "%s: operand #%d is null", op.name, i)
		}
		if (v.def == nil) == (v.owner == nil) {
			return errors.Wrapf(ErrInvalidIR, "%s: operand #%d has no unique definition", op.name, i)
		}
		if v.def != nil && (v.def.erased || v.def.block == nil) {
			return errors.Wrapf(ErrInvalidIR, "%s: operand #%d is defined by detached %s", op.name, i, v.def.name)
		}
		if v.owner != nil && v.owner.parent == nil {
			return errors.Wrapf(ErrInvalidIR, "%s: operand #%d is an argument of a detached block", op.name, i)
		}
		if !containsUse(v, o) {
			return errors.Wrapf(ErrInvalidIR, "%s: operand #%d is missing from its value's use list", op.name, i)
		}
	}
	if op.block != nil && op.IsTerminator() && op.block.Back() != op && !inGraphRegion(op) {
		return errors.Wrapf(ErrInvalidIR, "%s: terminator is not the last operation of its block", op.name)
	}
	for i, succ := range op.successors {
		if op.block == nil || succ.parent != op.block.parent {
			return errors.Wrapf(ErrInvalidIR, "%s: successor #%d is outside the enclosing region", op.name, i)
		}
	}
	for _, r := range op.regions {
		for _, b := range r.blocks {
			for i, arg := range b.args {
				if arg.owner != b || arg.index != i {
					return errors.Wrapf(ErrInvalidIR, "%s: block argument #%d has inconsistent ownership", op.name, i)
				}
			}
		}
	}
	return nil
}

// GraphRegionAttr marks an operation whose regions hold dataflow graphs:
// terminators there are ordinary nodes and may appear anywhere in a block.
const GraphRegionAttr = "graph_region"

func inGraphRegion(op *Operation) bool {
	parent := op.ParentOp()
	if parent == nil {
		return false
	}
	b, ok := parent.Attr(GraphRegionAttr).(BoolAttr)
	return ok && bool(b)
}

func containsUse(v *Value, o *OpOperand) bool {
	for _, u := range v.uses {
		if u == o {
			return true
		}
	}
	return false
}

// VerifyDefBeforeUse checks that every operand of every op in b that is
// defined in b is defined earlier than its use. exempt may skip individual
// operand slots; it can be nil.
func VerifyDefBeforeUse(b *Block, exempt func(*OpOperand) bool) error {
	defined := mapset.NewThreadUnsafeSet[*Value]()
	for _, arg := range b.args {
		defined.Add(arg)
	}
	for _, op := range b.ops {
		for _, o := range op.operands {
			v := o.value
			if v == nil || v.ParentBlock() != b || defined.Contains(v) {
				continue
			}
			if exempt != nil && exempt(o) {
				continue
			}
			return errors.Wrapf(ErrUseBeforeDef, "operand #%d of %s is defined by a later %s", o.index, op.name, definerName(v))
		}
		for _, r := range op.results {
			defined.Add(r)
		}
	}
	return nil
}

func definerName(v *Value) string {
	if v.def != nil {
		return v.def.name
	}
	return "block argument"
}
