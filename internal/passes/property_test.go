package passes

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"neuraflow/internal/ir"
	"neuraflow/internal/neura"
)

// randomCFG draws a function whose blocks form a chain with extra forward,
// backward and self edges. Every non-entry block takes one argument, adds a
// constant to it and passes the sum along each outgoing edge.
func randomCFG(t *rapid.T) *testFunc {
	n := rapid.IntRange(2, 7).Draw(t, "blocks")
	f := newTestFunc(t, ir.I32)
	blocks := []*ir.Block{f.entry()}
	for i := 1; i < n; i++ {
		blocks = append(blocks, f.block(ir.I32))
	}

	for i, blk := range blocks {
		f.at(blk)
		in := f.arg(0)
		if i > 0 {
			in = blk.Argument(0)
		}
		v := f.add(in, f.constant(int64(i)))
		if i == n-1 {
			f.ret(v)
			continue
		}
		next := blocks[i+1]
		if !rapid.Bool().Draw(t, fmt.Sprintf("branch%d", i)) {
			f.br(next, v)
			continue
		}
		other := blocks[rapid.IntRange(1, n-1).Draw(t, fmt.Sprintf("target%d", i))]
		cond := f.lt(v, f.arg(0))
		if rapid.Bool().Draw(t, fmt.Sprintf("swap%d", i)) {
			f.condBr(cond, other, []*ir.Value{v}, next, []*ir.Value{v})
		} else {
			f.condBr(cond, next, []*ir.Value{v}, other, []*ir.Value{v})
		}
	}
	return f
}

func TestConversionProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := randomCFG(rt)
		if err := f.run(rt, quietOptions(), CtrlToDataflowName); err != nil {
			rt.Fatalf("conversion failed: %v\n%s", err, f.dump())
		}

		body := ir.FuncBody(f.fn)
		if body.Len() != 1 {
			rt.Fatalf("expected a single block, got %d", body.Len())
		}
		entry := body.Entry()
		reserves, movs := 0, 0
		for i, op := range entry.Operations() {
			switch {
			case neura.IsBranch(op):
				rt.Fatalf("branch survived flattening:\n%s", f.dump())
			case op.Is(neura.ReserveOp):
				reserves++
				if n := len(op.Result(0).Uses()); n < 2 {
					rt.Fatalf("placeholder #%d has %d uses, want a merge read and a feedback write", i, n)
				}
			case op.Is(neura.CtrlMovOp):
				movs++
				def := op.Operand(0).DefiningOp()
				if def == nil || indexIn(entry, def)+1 > indexIn(entry, op) {
					rt.Fatalf("feedback move #%d precedes its value:\n%s", i, f.dump())
				}
			case op.Is(neura.PhiOp):
				distinct := make(map[*ir.Value]bool)
				for _, v := range op.Operands() {
					distinct[v] = true
				}
				if len(distinct) < 2 {
					rt.Fatalf("merge node #%d has %d distinct operands", i, len(distinct))
				}
			}
		}
		if reserves != movs {
			rt.Fatalf("%d placeholders but %d feedback moves", reserves, movs)
		}
	})
}

func TestDataMovProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := randomCFG(rt)
		convert := rapid.Bool().Draw(rt, "convert")
		names := []string{InsertDataMovName}
		if convert {
			names = []string{CtrlToDataflowName, InsertDataMovName}
		}
		if err := f.run(rt, quietOptions(), names...); err != nil {
			rt.Fatalf("pipeline %v failed: %v\n%s", names, err, f.dump())
		}

		ir.Walk(f.module, func(op *ir.Operation) {
			if op.Dialect() != neura.Namespace || isMove(op) {
				return
			}
			for i, v := range op.Operands() {
				if !neura.IsDataMovResult(v) {
					rt.Fatalf("operand #%d of %s is not moved:\n%s", i, op.Name(), f.dump())
				}
			}
		})

		once := f.dump()
		if err := f.run(rt, quietOptions(), InsertDataMovName); err != nil {
			rt.Fatalf("second insert-data-mov failed: %v", err)
		}
		if twice := f.dump(); twice != once {
			rt.Fatalf("insert-data-mov is not idempotent:\n%s\n---\n%s", once, twice)
		}
	})
}
