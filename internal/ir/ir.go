package ir

import (
	"go/token"
	"strings"
)

// Trait flags describe static properties of an operation kind.
type Trait uint8

const (
	// Terminator marks operations that may only appear last in a block.
	Terminator Trait = 1 << iota
	// NoSideEffect marks operations whose only effect is their results.
	NoSideEffect
)

// OpInfo records what a dialect knows about one operation name.
type OpInfo struct {
	Name   string
	Traits Trait
}

// Has reports whether the operation kind carries trait t.
func (i *OpInfo) Has(t Trait) bool {
	return i != nil && i.Traits&t != 0
}

// Dialect groups operation definitions under a namespace.
type Dialect struct {
	Namespace string
	Ops       map[string]*OpInfo
}

// NewDialect returns an empty dialect for namespace.
func NewDialect(namespace string) *Dialect {
	return &Dialect{
		Namespace: namespace,
		Ops:       make(map[string]*OpInfo),
	}
}

// AddOp registers the fully qualified operation name with traits.
func (d *Dialect) AddOp(name string, traits Trait) *OpInfo {
	info := &OpInfo{Name: name, Traits: traits}
	d.Ops[name] = info
	return info
}

// Context owns the dialects loaded for one program unit. Contexts are not
// shared between program units.
type Context struct {
	dialects map[string]*Dialect
}

// NewContext creates a context with the builtin and func dialects loaded,
// plus any extra dialects.
func NewContext(dialects ...*Dialect) *Context {
	ctx := &Context{dialects: make(map[string]*Dialect)}
	ctx.Load(builtinDialect)
	ctx.Load(funcDialect)
	for _, d := range dialects {
		ctx.Load(d)
	}
	return ctx
}

// Load makes a dialect available in the context. Loading twice is a no-op.
func (c *Context) Load(d *Dialect) {
	if d == nil {
		return
	}
	c.dialects[d.Namespace] = d
}

// IsLoaded reports whether the namespace has a loaded dialect.
func (c *Context) IsLoaded(namespace string) bool {
	_, ok := c.dialects[namespace]
	return ok
}

// Lookup returns the registered info for an operation name, or nil.
func (c *Context) Lookup(name string) *OpInfo {
	d, ok := c.dialects[namespaceOf(name)]
	if !ok {
		return nil
	}
	return d.Ops[name]
}

func namespaceOf(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

const (
	ModuleOpName = "builtin.module"
	FuncOpName   = "func.func"
)

var (
	builtinDialect = func() *Dialect {
		d := NewDialect("builtin")
		d.AddOp(ModuleOpName, 0)
		return d
	}()
	funcDialect = func() *Dialect {
		d := NewDialect("func")
		d.AddOp(FuncOpName, 0)
		return d
	}()
)

// Value is an SSA value: either the result of exactly one operation or an
// argument of exactly one block.
type Value struct {
	typ   Type
	name  string
	def   *Operation
	owner *Block
	index int
	uses  []*OpOperand
}

// Type returns the value's type.
func (v *Value) Type() Type { return v.typ }

// Name returns the optional printing hint.
func (v *Value) Name() string { return v.name }

// SetName sets the printing hint.
func (v *Value) SetName(name string) { v.name = name }

// DefiningOp returns the operation producing v, or nil for block arguments.
func (v *Value) DefiningOp() *Operation { return v.def }

// Owner returns the block owning v when v is a block argument.
func (v *Value) Owner() *Block { return v.owner }

// IsBlockArgument reports whether v is a block argument.
func (v *Value) IsBlockArgument() bool { return v.owner != nil }

// ArgNumber returns the argument position for block arguments.
func (v *Value) ArgNumber() int {
	if v.owner == nil {
		return -1
	}
	return v.index
}

// ResultIndex returns the result position for operation results.
func (v *Value) ResultIndex() int {
	if v.def == nil {
		return -1
	}
	return v.index
}

// ParentBlock returns the block v is defined in.
func (v *Value) ParentBlock() *Block {
	if v.owner != nil {
		return v.owner
	}
	if v.def != nil {
		return v.def.block
	}
	return nil
}

// Uses returns a snapshot of the use list.
func (v *Value) Uses() []*OpOperand {
	return append([]*OpOperand(nil), v.uses...)
}

// HasUses reports whether any operand refers to v.
func (v *Value) HasUses() bool { return len(v.uses) > 0 }

// ReplaceAllUsesWith rewires every use of v to nv.
func (v *Value) ReplaceAllUsesWith(nv *Value) {
	v.ReplaceUsesWithIf(nv, func(*OpOperand) bool { return true })
}

// ReplaceUsesWithIf rewires the uses of v accepted by pred to nv.
func (v *Value) ReplaceUsesWithIf(nv *Value, pred func(*OpOperand) bool) {
	if v == nv {
		return
	}
	for _, use := range v.Uses() {
		if pred(use) {
			use.Set(nv)
		}
	}
}

func (v *Value) addUse(o *OpOperand) {
	v.uses = append(v.uses, o)
}

func (v *Value) removeUse(o *OpOperand) {
	for i, u := range v.uses {
		if u == o {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}

// OpOperand is one operand slot of an operation.
type OpOperand struct {
	owner *Operation
	index int
	value *Value
}

// Owner returns the operation using the value.
func (o *OpOperand) Owner() *Operation { return o.owner }

// Index returns the operand position.
func (o *OpOperand) Index() int { return o.index }

// Get returns the value currently held by the slot.
func (o *OpOperand) Get() *Value { return o.value }

// Set points the slot at v and keeps both use lists consistent.
func (o *OpOperand) Set(v *Value) {
	if o.value == v {
		return
	}
	if o.value != nil {
		o.value.removeUse(o)
	}
	o.value = v
	if v != nil {
		v.addUse(o)
	}
}

// Edge is one control-flow edge into a block: successor slot Index of the
// terminator of From.
type Edge struct {
	From  *Block
	Index int
}

// Terminator returns the terminator owning the edge.
func (e Edge) Terminator() *Operation {
	return e.From.Terminator()
}

// Operation is a node of the program graph.
type Operation struct {
	Loc token.Pos

	name       string
	info       *OpInfo
	operands   []*OpOperand
	results    []*Value
	attrs      []NamedAttr
	successors []*Block
	regions    []*Region
	block      *Block
	erased     bool
}

// Name returns the fully qualified operation name.
func (op *Operation) Name() string { return op.name }

// Dialect returns the namespace prefix of the operation name.
func (op *Operation) Dialect() string { return namespaceOf(op.name) }

// Info returns the registered definition, or nil for unregistered ops.
func (op *Operation) Info() *OpInfo { return op.info }

// Is reports whether the operation has the given name.
func (op *Operation) Is(name string) bool { return op != nil && op.name == name }

// IsTerminator reports whether the op is registered as a terminator.
func (op *Operation) IsTerminator() bool { return op.info.Has(Terminator) }

// Erased reports whether the operation has been erased.
func (op *Operation) Erased() bool { return op.erased }

// NumOperands returns the operand count.
func (op *Operation) NumOperands() int { return len(op.operands) }

// Operand returns operand i.
func (op *Operation) Operand(i int) *Value { return op.operands[i].value }

// Operands returns the operand values.
func (op *Operation) Operands() []*Value {
	out := make([]*Value, len(op.operands))
	for i, o := range op.operands {
		out[i] = o.value
	}
	return out
}

// OpOperands returns a snapshot of the operand slots.
func (op *Operation) OpOperands() []*OpOperand {
	return append([]*OpOperand(nil), op.operands...)
}

// SetOperand points operand i at v.
func (op *Operation) SetOperand(i int, v *Value) { op.operands[i].Set(v) }

// NumResults returns the result count.
func (op *Operation) NumResults() int { return len(op.results) }

// Result returns result i.
func (op *Operation) Result(i int) *Value { return op.results[i] }

// Results returns the result values.
func (op *Operation) Results() []*Value {
	return append([]*Value(nil), op.results...)
}

// ResultTypes returns the result types in order.
func (op *Operation) ResultTypes() []Type {
	out := make([]Type, len(op.results))
	for i, r := range op.results {
		out[i] = r.typ
	}
	return out
}

// Attrs returns the attribute list.
func (op *Operation) Attrs() []NamedAttr {
	return append([]NamedAttr(nil), op.attrs...)
}

// Attr returns the named attribute, or nil.
func (op *Operation) Attr(name string) Attribute {
	for _, a := range op.attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return nil
}

// SetAttr adds or replaces the named attribute.
func (op *Operation) SetAttr(name string, value Attribute) {
	for i, a := range op.attrs {
		if a.Name == name {
			op.attrs[i].Value = value
			return
		}
	}
	op.attrs = append(op.attrs, NamedAttr{Name: name, Value: value})
}

// NumSuccessors returns the successor count.
func (op *Operation) NumSuccessors() int { return len(op.successors) }

// Successor returns successor i.
func (op *Operation) Successor(i int) *Block { return op.successors[i] }

// Successors returns the successor blocks.
func (op *Operation) Successors() []*Block {
	return append([]*Block(nil), op.successors...)
}

// Regions returns the nested regions.
func (op *Operation) Regions() []*Region {
	return append([]*Region(nil), op.regions...)
}

// Region returns nested region i.
func (op *Operation) Region(i int) *Region { return op.regions[i] }

// Block returns the block containing the op, or nil when detached.
func (op *Operation) Block() *Block { return op.block }

// ParentOp returns the operation whose region contains this op.
func (op *Operation) ParentOp() *Operation {
	if op.block == nil || op.block.parent == nil {
		return nil
	}
	return op.block.parent.parent
}

// Remove detaches the op from its block without dropping any references.
func (op *Operation) Remove() {
	if op.block != nil {
		op.block.remove(op)
	}
}

// MoveBefore moves the op in front of anchor, possibly across blocks.
func (op *Operation) MoveBefore(anchor *Operation) {
	op.Remove()
	anchor.block.insertBefore(anchor, op)
}

// MoveAfter moves the op right behind anchor, possibly across blocks.
func (op *Operation) MoveAfter(anchor *Operation) {
	op.Remove()
	anchor.block.insertAfter(anchor, op)
}

// Erase removes the op and drops its operand references. Results must be
// unused.
func (op *Operation) Erase() {
	for _, r := range op.results {
		if r.HasUses() {
			panic("ir: erasing " + op.name + " whose results are still used")
		}
	}
	op.dropAllReferences()
	op.Remove()
	op.erased = true
}

func (op *Operation) dropAllReferences() {
	for _, o := range op.operands {
		o.Set(nil)
	}
	op.successors = nil
	for _, r := range op.regions {
		for _, b := range r.blocks {
			for _, nested := range b.ops {
				nested.dropAllReferences()
				nested.erased = true
			}
		}
	}
}

// Block is an ordered list of operations with block arguments.
type Block struct {
	args   []*Value
	ops    []*Operation
	parent *Region
}

// NewBlock returns a detached block with arguments of the given types.
func NewBlock(argTypes ...Type) *Block {
	b := &Block{}
	for _, t := range argTypes {
		b.AddArgument(t)
	}
	return b
}

// AddArgument appends a block argument.
func (b *Block) AddArgument(t Type) *Value {
	v := &Value{typ: t, owner: b, index: len(b.args)}
	b.args = append(b.args, v)
	return v
}

// NumArguments returns the argument count.
func (b *Block) NumArguments() int { return len(b.args) }

// Argument returns argument i.
func (b *Block) Argument(i int) *Value { return b.args[i] }

// Arguments returns the block arguments.
func (b *Block) Arguments() []*Value {
	return append([]*Value(nil), b.args...)
}

// Operations returns a snapshot of the operation list.
func (b *Block) Operations() []*Operation {
	return append([]*Operation(nil), b.ops...)
}

// Len returns the number of operations.
func (b *Block) Len() int { return len(b.ops) }

// Empty reports whether the block holds no operations.
func (b *Block) Empty() bool { return len(b.ops) == 0 }

// Front returns the first operation, or nil.
func (b *Block) Front() *Operation {
	if len(b.ops) == 0 {
		return nil
	}
	return b.ops[0]
}

// Back returns the last operation, or nil.
func (b *Block) Back() *Operation {
	if len(b.ops) == 0 {
		return nil
	}
	return b.ops[len(b.ops)-1]
}

// Terminator returns the last operation when it is a terminator.
func (b *Block) Terminator() *Operation {
	if back := b.Back(); back != nil && back.IsTerminator() {
		return back
	}
	return nil
}

// Parent returns the region containing the block.
func (b *Block) Parent() *Region { return b.parent }

// ParentOp returns the operation owning the block's region.
func (b *Block) ParentOp() *Operation {
	if b.parent == nil {
		return nil
	}
	return b.parent.parent
}

// Index returns the declaration position of the block in its region.
func (b *Block) Index() int {
	if b.parent == nil {
		return -1
	}
	for i, blk := range b.parent.blocks {
		if blk == b {
			return i
		}
	}
	return -1
}

// IsEntry reports whether b is the first block of its region.
func (b *Block) IsEntry() bool {
	return b.parent != nil && len(b.parent.blocks) > 0 && b.parent.blocks[0] == b
}

// Successors returns the successor blocks of the terminator.
func (b *Block) Successors() []*Block {
	term := b.Terminator()
	if term == nil {
		return nil
	}
	return term.Successors()
}

// Predecessors returns the incoming edges in canonical order: predecessor
// blocks in declaration order, then successor slot order.
func (b *Block) Predecessors() []Edge {
	if b.parent == nil {
		return nil
	}
	var edges []Edge
	for _, from := range b.parent.blocks {
		term := from.Terminator()
		if term == nil {
			continue
		}
		for i, succ := range term.successors {
			if succ == b {
				edges = append(edges, Edge{From: from, Index: i})
			}
		}
	}
	return edges
}

// HasPredecessors reports whether any edge targets b.
func (b *Block) HasPredecessors() bool {
	return len(b.Predecessors()) > 0
}

// Append adds op at the end of the block.
func (b *Block) Append(op *Operation) {
	b.insertAt(len(b.ops), op)
}

// Prepend adds op at the start of the block.
func (b *Block) Prepend(op *Operation) {
	b.insertAt(0, op)
}

// Erase removes the block from its region, erasing its operations.
func (b *Block) Erase() {
	for i := len(b.ops) - 1; i >= 0; i-- {
		b.ops[i].dropAllReferences()
	}
	for _, op := range b.Operations() {
		op.Remove()
		op.erased = true
	}
	if b.parent != nil {
		b.parent.remove(b)
	}
}

func (b *Block) indexOf(op *Operation) int {
	for i, o := range b.ops {
		if o == op {
			return i
		}
	}
	return -1
}

func (b *Block) insertAt(i int, op *Operation) {
	if op.block != nil {
		panic("ir: inserting " + op.name + " which already has a parent block")
	}
	b.ops = append(b.ops, nil)
	copy(b.ops[i+1:], b.ops[i:])
	b.ops[i] = op
	op.block = b
}

func (b *Block) insertBefore(anchor, op *Operation) {
	b.insertAt(b.indexOf(anchor), op)
}

func (b *Block) insertAfter(anchor, op *Operation) {
	b.insertAt(b.indexOf(anchor)+1, op)
}

func (b *Block) remove(op *Operation) {
	if i := b.indexOf(op); i >= 0 {
		b.ops = append(b.ops[:i], b.ops[i+1:]...)
	}
	op.block = nil
}

// Region is an ordered list of blocks owned by an operation.
type Region struct {
	blocks []*Block
	parent *Operation
}

// NewRegion returns a detached region holding blocks.
func NewRegion(blocks ...*Block) *Region {
	r := &Region{}
	for _, b := range blocks {
		r.Append(b)
	}
	return r
}

// Blocks returns the blocks in declaration order.
func (r *Region) Blocks() []*Block {
	return append([]*Block(nil), r.blocks...)
}

// Len returns the block count.
func (r *Region) Len() int { return len(r.blocks) }

// Entry returns the first block, or nil.
func (r *Region) Entry() *Block {
	if len(r.blocks) == 0 {
		return nil
	}
	return r.blocks[0]
}

// ParentOp returns the owning operation.
func (r *Region) ParentOp() *Operation { return r.parent }

// Append adds b at the end of the region.
func (r *Region) Append(b *Block) {
	b.parent = r
	r.blocks = append(r.blocks, b)
}

func (r *Region) remove(b *Block) {
	for i, blk := range r.blocks {
		if blk == b {
			r.blocks = append(r.blocks[:i], r.blocks[i+1:]...)
			break
		}
	}
	b.parent = nil
}
