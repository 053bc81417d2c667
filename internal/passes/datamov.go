package passes

import (
	"context"

	"github.com/containerd/log"
	"github.com/pkg/errors"

	"neuraflow/internal/ir"
	"neuraflow/internal/neura"
	"neuraflow/internal/rewrite"
)

// InsertDataMovName is the pipeline name of the data-movement pass.
const InsertDataMovName = "insert-data-mov"

// ErrMixedMoveWrap is returned when an operation has some but not all of its
// operands produced by data_mov.
var ErrMixedMoveWrap = errors.New("operation is partially move-wrapped")

func init() {
	Register(InsertDataMovName,
		"Insert neura.data_mov before all neura dialect operations.",
		func(opts Options) Pass { return NewInsertDataMov(opts) })
}

// InsertDataMov routes every operand of every neura operation through an
// explicit neura.data_mov.
type InsertDataMov struct {
	opts Options
}

// NewInsertDataMov constructs the pass.
func NewInsertDataMov(opts Options) *InsertDataMov {
	return &InsertDataMov{opts: opts}
}

func (p *InsertDataMov) Name() string { return InsertDataMovName }

func (p *InsertDataMov) Description() string {
	return "Insert neura.data_mov before all neura dialect operations."
}

func (p *InsertDataMov) DependentDialects() []string {
	return []string{neura.Namespace}
}

// Run rewrites every region nested in module to a fixpoint.
func (p *InsertDataMov) Run(ctx context.Context, irctx *ir.Context, module *ir.Operation) error {
	if err := requireDialects(irctx, p); err != nil {
		return err
	}
	pattern := &wrapOperands{}
	driver := &rewrite.Driver{
		IR:            irctx,
		Patterns:      []rewrite.Pattern{pattern},
		MaxIterations: p.opts.MaxIterations,
	}
	for i, r := range module.Regions() {
		stats, err := driver.Apply(ctx, r)
		if err != nil {
			return errors.Wrapf(err, "region #%d of %s", i, module.Name())
		}
		log.G(ctx).WithFields(log.Fields{
			"region":     i,
			"iterations": stats.Iterations,
			"rewrites":   stats.Rewrites,
		}).Debug("inserted data movement")
	}
	p.opts.Stats.Add(p.Name(), StatDataMovs, pattern.movs)
	return nil
}

// wrapOperands rebuilds a neura operation over data_mov copies of its
// operands.
type wrapOperands struct {
	movs int
}

func (*wrapOperands) Name() string { return "wrap-operands-in-data-mov" }

func (w *wrapOperands) MatchAndRewrite(op *ir.Operation, rw *rewrite.Rewriter) (bool, error) {
	if op.Dialect() != neura.Namespace || isMove(op) || op.NumOperands() == 0 {
		return false, nil
	}
	operands := op.Operands()
	wrapped := 0
	for _, v := range operands {
		if neura.IsDataMovResult(v) {
			wrapped++
		}
	}
	switch wrapped {
	case len(operands):
		return false, nil
	case 0:
	default:
		return false, errors.Wrapf(ErrMixedMoveWrap, "%s has %d of %d operands wrapped", op.Name(), wrapped, len(operands))
	}

	moved := make([]*ir.Value, len(operands))
	for i, v := range operands {
		moved[i] = neura.DataMov(rw.Builder, op.Loc, v)
	}
	w.movs += len(moved)

	state := ir.NewOperationState(op.Name(), op.Loc).
		AddOperands(moved...).
		AddTypes(op.ResultTypes()...).
		AddAttrs(op.Attrs()...).
		AddSuccessors(op.Successors()...)
	rebuilt := rw.Create(state)
	rw.ReplaceOpWithOp(op, rebuilt)
	return true, nil
}

// isMove reports whether op is one of the two move kinds. A ctrl_mov writes
// its second operand, so wrapping it would detach the placeholder it feeds.
func isMove(op *ir.Operation) bool {
	return op.Is(neura.DataMovOp) || op.Is(neura.CtrlMovOp)
}
