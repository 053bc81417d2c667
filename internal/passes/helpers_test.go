package passes

import (
	"bytes"
	"context"
	"go/token"

	"github.com/google/go-cmp/cmp"

	"neuraflow/internal/diag"
	"neuraflow/internal/ir"
	"neuraflow/internal/neura"
)

// byIdentity compares IR values and blocks by pointer instead of walking
// their unexported fields.
var byIdentity = cmp.Options{
	cmp.Comparer(func(a, b *ir.Value) bool { return a == b }),
	cmp.Comparer(func(a, b *ir.Block) bool { return a == b }),
}

// tester is the part of testing.T and rapid.T the helpers need.
type tester interface {
	Helper()
	Fatalf(format string, args ...any)
}

// testFunc builds a single func.func inside a module, one block at a time.
type testFunc struct {
	ctx    *ir.Context
	module *ir.Operation
	fn     *ir.Operation
	b      *ir.Builder
}

func newTestFunc(t tester, inputs ...ir.Type) *testFunc {
	t.Helper()
	ctx := ir.NewContext(neura.Dialect())
	module := ir.NewModule(ctx)
	fn := ir.NewFunc(ctx, "kernel", ir.FunctionType{Inputs: inputs, Results: []ir.Type{ir.I32}}, token.NoPos)
	ir.ModuleBody(module).Append(fn)
	b := ir.NewBuilder(ctx)
	b.SetInsertionPointToEnd(ir.FuncBody(fn).Entry())
	return &testFunc{ctx: ctx, module: module, fn: fn, b: b}
}

func (f *testFunc) entry() *ir.Block { return ir.FuncBody(f.fn).Entry() }

func (f *testFunc) arg(i int) *ir.Value { return f.entry().Argument(i) }

// block appends a new block with the given argument types.
func (f *testFunc) block(types ...ir.Type) *ir.Block {
	blk := ir.NewBlock(types...)
	ir.FuncBody(f.fn).Append(blk)
	return blk
}

// at moves the insertion point to the end of blk.
func (f *testFunc) at(blk *ir.Block) *testFunc {
	f.b.SetInsertionPointToEnd(blk)
	return f
}

func (f *testFunc) constant(v int64) *ir.Value {
	return neura.Constant(f.b, token.NoPos, ir.IntAttr{Value: v, Type: ir.I32}, ir.I32)
}

func (f *testFunc) add(x, y *ir.Value) *ir.Value {
	return neura.Binary(f.b, token.NoPos, neura.AddOp, x, y, ir.I32)
}

func (f *testFunc) lt(x, y *ir.Value) *ir.Value {
	return neura.Compare(f.b, token.NoPos, neura.ICmpOp, "slt", x, y)
}

func (f *testFunc) br(dest *ir.Block, args ...*ir.Value) {
	neura.Br(f.b, token.NoPos, dest, args...)
}

func (f *testFunc) condBr(cond *ir.Value, t *ir.Block, targs []*ir.Value, e *ir.Block, eargs []*ir.Value) {
	neura.CondBr(f.b, token.NoPos, cond, t, targs, e, eargs)
}

func (f *testFunc) ret(vals ...*ir.Value) {
	neura.Return(f.b, token.NoPos, vals...)
}

// run executes the named passes with verification on.
func (f *testFunc) run(t tester, opts Options, names ...string) error {
	t.Helper()
	opts.Verify = true
	m, err := NewPipeline(names, opts)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return m.Run(context.Background(), f.ctx, f.module)
}

func (f *testFunc) dump() string {
	var buf bytes.Buffer
	ir.Dump(f.module, &buf)
	return buf.String()
}

// opsNamed returns every op called name under op, in walk order.
func opsNamed(op *ir.Operation, name string) []*ir.Operation {
	var out []*ir.Operation
	ir.Walk(op, func(o *ir.Operation) {
		if o.Is(name) {
			out = append(out, o)
		}
	})
	return out
}

func quietOptions() Options {
	return Options{
		Reporter: diag.NewReporter(nil, "text"),
		Stats:    NewStatistics(),
	}
}

func indexIn(b *ir.Block, op *ir.Operation) int {
	for i, o := range b.Operations() {
		if o == op {
			return i
		}
	}
	return -1
}
