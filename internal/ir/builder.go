package ir

import "go/token"

// OperationState collects everything needed to create an operation.
type OperationState struct {
	Name       string
	Loc        token.Pos
	Operands   []*Value
	Types      []Type
	Attrs      []NamedAttr
	Successors []*Block
	Regions    []*Region
}

// NewOperationState starts a state for the named operation.
func NewOperationState(name string, loc token.Pos) *OperationState {
	return &OperationState{Name: name, Loc: loc}
}

// AddOperands appends operands.
func (s *OperationState) AddOperands(vals ...*Value) *OperationState {
	s.Operands = append(s.Operands, vals...)
	return s
}

// AddTypes appends result types.
func (s *OperationState) AddTypes(types ...Type) *OperationState {
	s.Types = append(s.Types, types...)
	return s
}

// AddAttr appends a named attribute.
func (s *OperationState) AddAttr(name string, value Attribute) *OperationState {
	s.Attrs = append(s.Attrs, NamedAttr{Name: name, Value: value})
	return s
}

// AddAttrs appends named attributes.
func (s *OperationState) AddAttrs(attrs ...NamedAttr) *OperationState {
	s.Attrs = append(s.Attrs, attrs...)
	return s
}

// AddSuccessors appends successor blocks.
func (s *OperationState) AddSuccessors(blocks ...*Block) *OperationState {
	s.Successors = append(s.Successors, blocks...)
	return s
}

// AddRegion transfers ownership of r to the operation being built.
func (s *OperationState) AddRegion(r *Region) *OperationState {
	s.Regions = append(s.Regions, r)
	return s
}

// Create builds a detached operation from state.
func (c *Context) Create(state *OperationState) *Operation {
	op := &Operation{
		Loc:        state.Loc,
		name:       state.Name,
		info:       c.Lookup(state.Name),
		attrs:      append([]NamedAttr(nil), state.Attrs...),
		successors: append([]*Block(nil), state.Successors...),
	}
	for i, v := range state.Operands {
		o := &OpOperand{owner: op, index: i}
		o.Set(v)
		op.operands = append(op.operands, o)
	}
	for i, t := range state.Types {
		op.results = append(op.results, &Value{typ: t, def: op, index: i})
	}
	for _, r := range state.Regions {
		r.parent = op
		op.regions = append(op.regions, r)
	}
	return op
}

// Builder creates operations at an insertion point. The insertion point is
// "before anchor"; a nil anchor means the end of the block. Consecutive
// inserts therefore keep their creation order.
type Builder struct {
	ctx    *Context
	block  *Block
	anchor *Operation
}

// NewBuilder returns a builder without an insertion point.
func NewBuilder(ctx *Context) *Builder {
	return &Builder{ctx: ctx}
}

// Context returns the builder's context.
func (b *Builder) Context() *Context { return b.ctx }

// InsertionBlock returns the block new operations go into.
func (b *Builder) InsertionBlock() *Block { return b.block }

// SetInsertionPointToStart inserts before the current first op of blk.
func (b *Builder) SetInsertionPointToStart(blk *Block) {
	b.block = blk
	b.anchor = blk.Front()
}

// SetInsertionPointToEnd appends to blk.
func (b *Builder) SetInsertionPointToEnd(blk *Block) {
	b.block = blk
	b.anchor = nil
}

// SetInsertionPoint inserts before op.
func (b *Builder) SetInsertionPoint(op *Operation) {
	b.block = op.block
	b.anchor = op
}

// SetInsertionPointAfter inserts right behind op.
func (b *Builder) SetInsertionPointAfter(op *Operation) {
	b.block = op.block
	b.anchor = nil
	if i := op.block.indexOf(op); i+1 < len(op.block.ops) {
		b.anchor = op.block.ops[i+1]
	}
}

// Insert places a detached op at the insertion point.
func (b *Builder) Insert(op *Operation) *Operation {
	if b.block == nil {
		return op
	}
	if b.anchor == nil || b.anchor.block != b.block {
		b.block.Append(op)
		return op
	}
	b.block.insertBefore(b.anchor, op)
	return op
}

// Create builds an operation from state and inserts it.
func (b *Builder) Create(state *OperationState) *Operation {
	return b.Insert(b.ctx.Create(state))
}
