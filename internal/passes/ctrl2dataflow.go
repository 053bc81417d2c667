package passes

import (
	"context"
	"go/token"

	"github.com/containerd/log"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"neuraflow/internal/ir"
	"neuraflow/internal/neura"
)

// CtrlToDataflowName is the pipeline name of the control-to-dataflow pass.
const CtrlToDataflowName = "transform-ctrl-to-data-flow"

var (
	// ErrUnresolvedEdge is returned in strict mode when the value a
	// predecessor passes to a block argument cannot be determined.
	ErrUnresolvedEdge = errors.New("unresolved predecessor edge")
	// ErrOrderViolation is returned when the flattened block is not in
	// def-before-use order.
	ErrOrderViolation = errors.New("flattened order violates def-before-use")
	// ErrSelfFeedback is returned when a placeholder would be written with
	// its own value.
	ErrSelfFeedback = errors.New("placeholder feeds itself")
)

func init() {
	Register(CtrlToDataflowName,
		"Transforms control flow into data flow using predicated execution",
		func(opts Options) Pass { return NewCtrlToDataflow(opts) })
}

// CtrlToDataflow turns every function body into a single block: block
// arguments become merge nodes over predicated values, loop-carried values
// go through placeholders closed by feedback moves, and branches disappear.
type CtrlToDataflow struct {
	opts Options
}

// NewCtrlToDataflow constructs the pass.
func NewCtrlToDataflow(opts Options) *CtrlToDataflow {
	return &CtrlToDataflow{opts: opts}
}

func (p *CtrlToDataflow) Name() string { return CtrlToDataflowName }

func (p *CtrlToDataflow) Description() string {
	return "Transforms control flow into data flow using predicated execution"
}

func (p *CtrlToDataflow) DependentDialects() []string {
	return []string{neura.Namespace}
}

// Run converts every func.func in module.
func (p *CtrlToDataflow) Run(ctx context.Context, irctx *ir.Context, module *ir.Operation) error {
	if err := requireDialects(irctx, p); err != nil {
		return err
	}
	for _, fn := range ir.Funcs(module) {
		if err := p.convertFunc(ctx, irctx, fn); err != nil {
			return errors.Wrapf(err, "func @%s", ir.FuncName(fn))
		}
	}
	return nil
}

// obligation is a placeholder waiting for the feedback move that writes the
// real value into it.
type obligation struct {
	real        *ir.Value
	placeholder *ir.Value
	block       *ir.Block
}

// conversion is the state of converting one function. Nothing in it
// outlives the function.
type conversion struct {
	pass    *CtrlToDataflow
	builder *ir.Builder
	entry   *ir.Block
	order   map[*ir.Block]int
	subst   map[*ir.Value]*ir.Value
	pending []obligation

	merges, collapsed, placeholders, feedback, unresolved int
}

func (p *CtrlToDataflow) convertFunc(ctx context.Context, irctx *ir.Context, fn *ir.Operation) error {
	body := ir.FuncBody(fn)
	if body.Len() == 0 {
		return nil
	}
	c := &conversion{
		pass:    p,
		builder: ir.NewBuilder(irctx),
		entry:   body.Entry(),
		order:   make(map[*ir.Block]int),
		subst:   make(map[*ir.Value]*ir.Value),
	}
	for i, b := range body.Blocks() {
		c.order[b] = i
	}

	for _, b := range PostOrder(body) {
		if err := c.buildMerges(b); err != nil {
			return err
		}
	}
	flattened := c.flatten(body)
	if err := c.closeFeedback(); err != nil {
		return err
	}
	fn.SetAttr(ir.GraphRegionAttr, ir.BoolAttr(true))

	if p.opts.Verify {
		if err := ir.VerifyDefBeforeUse(c.entry, isFeedbackTarget); err != nil {
			return errors.Wrapf(ErrOrderViolation, "%v", err)
		}
	}

	stats := p.opts.Stats
	stats.Add(p.Name(), StatMergesCreated, c.merges)
	stats.Add(p.Name(), StatMergesCollapsed, c.collapsed)
	stats.Add(p.Name(), StatPlaceholders, c.placeholders)
	stats.Add(p.Name(), StatFeedbackMoves, c.feedback)
	stats.Add(p.Name(), StatUnresolvedEdges, c.unresolved)
	stats.Add(p.Name(), StatBlocksFlattened, flattened)

	log.G(ctx).WithFields(log.Fields{
		"func":         ir.FuncName(fn),
		"blocks":       flattened + 1,
		"merges":       c.merges,
		"collapsed":    c.collapsed,
		"placeholders": c.placeholders,
		"feedback":     c.feedback,
	}).Debug("converted control flow to data flow")
	return nil
}

// isFeedbackTarget exempts the placeholder slot of a ctrl_mov: it is
// written, not read.
func isFeedbackTarget(o *ir.OpOperand) bool {
	return o.Owner().Is(neura.CtrlMovOp) && o.Index() == 1
}

// liveIns returns, in order of first occurrence, the operands of b's
// operations defined in another block, followed by every argument of b that
// has a use anywhere.
func (c *conversion) liveIns(b *ir.Block) []*ir.Value {
	seen := mapset.NewThreadUnsafeSet[*ir.Value]()
	var out []*ir.Value
	for _, op := range b.Operations() {
		for _, v := range op.Operands() {
			if v == nil {
				continue
			}
			if def := v.DefiningOp(); def != nil && def.Block() == b {
				continue
			}
			if seen.Add(v) {
				out = append(out, v)
			}
		}
	}
	for _, arg := range b.Arguments() {
		if arg.HasUses() && seen.Add(arg) {
			out = append(out, arg)
		}
	}
	return out
}

// buildMerges creates one merge node per argument of b whose incoming
// values differ, and substitutes the single incoming value otherwise.
func (c *conversion) buildMerges(b *ir.Block) error {
	if b == c.entry {
		return nil
	}
	preds := b.Predecessors()
	loc := c.blockLoc(b)
	c.builder.SetInsertionPointToStart(b)
	reserved := make(map[*ir.Value]*ir.Value)

	for _, liveIn := range c.liveIns(b) {
		if liveIn.Owner() != b {
			c.subst[liveIn] = liveIn
			continue
		}
		incoming, err := c.resolveIncoming(b, preds, liveIn, reserved, loc)
		if err != nil {
			return err
		}
		if len(incoming) == 0 {
			return errors.Wrapf(ErrUnresolvedEdge, "no predecessor of %s supplies used argument #%d", ir.BlockName(b), liveIn.ArgNumber())
		}

		distinct := mapset.NewThreadUnsafeSet[*ir.Value](incoming...)
		if distinct.Cardinality() == 1 {
			single := incoming[0]
			liveIn.ReplaceAllUsesWith(single)
			c.subst[liveIn] = single
			c.collapsed++
			continue
		}

		phi := neura.Phi(c.builder, loc, neura.Predicated(liveIn.Type()), incoming)
		phiOp := phi.DefiningOp()
		liveIn.ReplaceUsesWithIf(phi, func(o *ir.OpOperand) bool {
			return o.Owner() != phiOp
		})
		c.subst[liveIn] = phi
		c.merges++
	}
	return nil
}

// resolveIncoming returns one incoming value per resolved predecessor edge,
// in canonical edge order. Loop-carried values are replaced by placeholders;
// a value carried into b twice shares one placeholder.
func (c *conversion) resolveIncoming(b *ir.Block, preds []ir.Edge, arg *ir.Value, reserved map[*ir.Value]*ir.Value, loc token.Pos) ([]*ir.Value, error) {
	var incoming []*ir.Value
	for _, e := range preds {
		v, err := c.incomingOnEdge(b, e, arg.ArgNumber())
		if err != nil {
			if c.pass.opts.StrictEdges {
				return nil, err
			}
			c.unresolved++
			c.pass.opts.Reporter.Warning(edgeLoc(e), err.Error())
			continue
		}
		if c.loopCarried(b, v) {
			ph, ok := reserved[v]
			if !ok {
				ph = neura.Reserve(c.builder, loc, v.Type())
				reserved[v] = ph
				c.pending = append(c.pending, obligation{real: v, placeholder: ph, block: b})
				c.placeholders++
			}
			v = ph
		}
		incoming = append(incoming, v)
	}
	return incoming, nil
}

func (c *conversion) incomingOnEdge(b *ir.Block, e ir.Edge, index int) (*ir.Value, error) {
	term := e.Terminator()
	switch {
	case term.Is(neura.BrOp), term.Is(neura.CondBrOp):
		if term.Successor(e.Index) != b {
			return nil, errors.Wrapf(ErrUnresolvedEdge, "%s in %s does not target %s", term.Name(), ir.BlockName(e.From), ir.BlockName(b))
		}
		args, ok := neura.SuccessorOperands(term, e.Index)
		if !ok || index >= len(args) {
			return nil, errors.Wrapf(ErrUnresolvedEdge, "%s in %s passes no argument #%d to %s", term.Name(), ir.BlockName(e.From), index, ir.BlockName(b))
		}
		return args[index], nil
	default:
		return nil, errors.Wrapf(ErrUnresolvedEdge, "unknown branch terminator %s in %s", term.Name(), ir.BlockName(e.From))
	}
}

// loopCarried reports whether v will not be defined ahead of b's merge nodes
// once the blocks are spliced in declaration order: it is defined in b
// itself or in a block declared after b.
func (c *conversion) loopCarried(b *ir.Block, v *ir.Value) bool {
	pb := v.ParentBlock()
	if pb == nil {
		return false
	}
	at, ok := c.order[pb]
	if !ok {
		return false
	}
	return at >= c.order[b]
}

// flatten splices every non-entry block into the entry block in declaration
// order and removes all branches. It returns the number of blocks removed.
func (c *conversion) flatten(body *ir.Region) int {
	others := body.Blocks()[1:]
	for _, b := range others {
		for _, op := range b.Operations() {
			if neura.IsBranch(op) {
				op.Erase()
			}
		}
	}
	anchor := c.entry.Back()
	for _, b := range others {
		for _, op := range b.Operations() {
			if anchor != nil {
				op.MoveBefore(anchor)
				continue
			}
			op.Remove()
			c.entry.Append(op)
		}
	}
	for _, op := range c.entry.Operations() {
		if neura.IsBranch(op) {
			op.Erase()
		}
	}
	for _, b := range others {
		b.Erase()
	}
	return len(others)
}

// closeFeedback inserts one ctrl_mov per pending placeholder, right after the
// final definition of the value it stands for.
func (c *conversion) closeFeedback() error {
	for _, ob := range c.pending {
		real := c.resolve(ob.real)
		if real == ob.placeholder {
			return errors.Wrapf(ErrSelfFeedback, "argument carried around %s never changes", ir.BlockName(ob.block))
		}
		loc := ob.placeholder.DefiningOp().Loc
		if def := real.DefiningOp(); def != nil {
			c.builder.SetInsertionPointAfter(def)
			loc = def.Loc
		} else {
			c.builder.SetInsertionPointToStart(real.Owner())
		}
		neura.CtrlMov(c.builder, loc, real, ob.placeholder)
		c.feedback++
	}
	c.pending = nil
	return nil
}

// resolve follows the substitution map to the value that replaced v.
func (c *conversion) resolve(v *ir.Value) *ir.Value {
	for i := 0; i <= len(c.subst); i++ {
		next, ok := c.subst[v]
		if !ok || next == v {
			return v
		}
		v = next
	}
	return v
}

func (c *conversion) blockLoc(b *ir.Block) token.Pos {
	if front := b.Front(); front != nil {
		return front.Loc
	}
	if parent := b.ParentOp(); parent != nil {
		return parent.Loc
	}
	return token.NoPos
}

func edgeLoc(e ir.Edge) token.Pos {
	if term := e.Terminator(); term != nil {
		return term.Loc
	}
	return token.NoPos
}
