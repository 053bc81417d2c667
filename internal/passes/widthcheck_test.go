package passes

import (
	"bytes"
	"go/token"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"neuraflow/internal/diag"
	"neuraflow/internal/ir"
	"neuraflow/internal/neura"
)

func TestWidthCheckAcceptsConvertedFunctions(t *testing.T) {
	f, _, _ := counter(t)
	opts := quietOptions()
	err := f.run(t, opts, CtrlToDataflowName, InsertDataMovName, VerifyWidthsName)
	assert.NilError(t, err, f.dump())
	assert.Equal(t, opts.Reporter.ErrorCount(), 0)
}

func TestWidthCheckAcceptsControlFlow(t *testing.T) {
	f, _ := diamond(t,
		func(f *testFunc) *ir.Value { return f.constant(1) },
		func(f *testFunc) *ir.Value { return f.constant(2) })
	assert.NilError(t, f.run(t, quietOptions(), VerifyWidthsName), f.dump())
}

func TestWidthCheckReportsMismatches(t *testing.T) {
	f := newTestFunc(t, ir.I32)
	narrow := neura.Constant(f.b, token.NoPos, ir.IntAttr{Value: 3, Type: ir.IntType{Width: 16}}, ir.IntType{Width: 16})
	sum := f.add(f.arg(0), narrow)
	cmp := neura.Compare(f.b, token.NoPos, neura.ICmpOp, "eq", sum, narrow)
	exit := f.block(ir.I32)
	f.condBr(cmp, exit, []*ir.Value{sum}, exit, []*ir.Value{cmp})
	f.at(exit).ret(exit.Argument(0), exit.Argument(0))

	var buf bytes.Buffer
	opts := quietOptions()
	opts.Reporter = diag.NewReporter(&buf, "text")
	err := f.run(t, opts, VerifyWidthsName)
	assert.ErrorContains(t, err, "width check reported 4 error(s)")

	out := buf.String()
	assert.Check(t, is.Contains(out, "neura.add: operand #1 is i16 but the result is i32"))
	assert.Check(t, is.Contains(out, "neura.icmp: compare operands have mismatched widths (i32 vs i16)"))
	assert.Check(t, is.Contains(out, "neura.cond_br: argument #0 to ^bb1 is i1, block expects i32"))
	assert.Check(t, is.Contains(out, "neura.return: returns 2 value(s), function declares 1"))
}
