package mlir

import (
	"bytes"
	"context"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/golden"

	"neuraflow/internal/diag"
	"neuraflow/internal/ir"
	"neuraflow/internal/neura"
	"neuraflow/internal/passes"
)

// branchModule builds kernel(x) { y := x + 1; goto exit(y) } exit(v) { return v }.
func branchModule() (*ir.Context, *ir.Operation) {
	irctx := ir.NewContext(neura.Dialect())
	module := ir.NewModule(irctx)
	fn := ir.NewFunc(irctx, "kernel", ir.FunctionType{Inputs: []ir.Type{ir.I32}, Results: []ir.Type{ir.I32}}, token.NoPos)
	ir.ModuleBody(module).Append(fn)

	body := ir.FuncBody(fn)
	exit := ir.NewBlock(ir.I32)
	body.Append(exit)

	b := ir.NewBuilder(irctx)
	b.SetInsertionPointToEnd(body.Entry())
	one := neura.Constant(b, token.NoPos, ir.IntAttr{Value: 1, Type: ir.I32}, ir.I32)
	sum := neura.Binary(b, token.NoPos, neura.AddOp, body.Entry().Argument(0), one, ir.I32)
	neura.Br(b, token.NoPos, exit, sum)
	b.SetInsertionPointToEnd(exit)
	neura.Return(b, token.NoPos, exit.Argument(0))
	return irctx, module
}

func TestWriteGenericSyntax(t *testing.T) {
	_, module := branchModule()
	var buf bytes.Buffer
	assert.NilError(t, Write(&buf, module))
	golden.Assert(t, buf.String(), "branch.golden")
}

func TestWriteConvertedModule(t *testing.T) {
	irctx, module := branchModule()
	opts := passes.Options{
		Reporter: diag.NewReporter(nil, "text"),
		Stats:    passes.NewStatistics(),
		Verify:   true,
	}
	m, err := passes.ParsePipeline("transform-ctrl-to-data-flow,insert-data-mov", opts)
	assert.NilError(t, err)
	assert.NilError(t, m.Run(context.Background(), irctx, module))

	var buf bytes.Buffer
	assert.NilError(t, Write(&buf, module))
	out := buf.String()
	assert.Check(t, is.Contains(out, `"neura.data_mov"`))
	assert.Check(t, is.Contains(out, "graph_region = true"))
	assert.Check(t, !strings.Contains(out, "^bb1"), "flattened function still has a second block:\n%s", out)
	assert.Check(t, !strings.Contains(out, `"neura.br"`))
}

func TestWriteRejectsNonModule(t *testing.T) {
	irctx, _ := branchModule()
	fn := ir.NewFunc(irctx, "lonely", ir.FunctionType{}, token.NoPos)
	err := Write(&bytes.Buffer{}, fn)
	assert.ErrorContains(t, err, "expected a builtin.module")
}

func TestEmitWritesFile(t *testing.T) {
	_, module := branchModule()
	path := filepath.Join(t.TempDir(), "out.mlir")
	assert.NilError(t, Emit(module, path))

	data, err := os.ReadFile(path)
	assert.NilError(t, err)
	golden.Assert(t, string(data), "branch.golden")
}
