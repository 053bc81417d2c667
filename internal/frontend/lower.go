package frontend

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"golang.org/x/tools/go/ssa"

	"neuraflow/internal/diag"
	"neuraflow/internal/ir"
	"neuraflow/internal/neura"
)

// Kernels returns the functions of pkg that get lowered: every
// non-synthetic function with a body, in source order.
func Kernels(pkg *ssa.Package) []*ssa.Function {
	var fns []*ssa.Function
	for _, member := range pkg.Members {
		fn, ok := member.(*ssa.Function)
		if !ok || fn.Synthetic != "" || len(fn.Blocks) == 0 {
			continue
		}
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool {
		if fns[i].Pos() != fns[j].Pos() {
			return fns[i].Pos() < fns[j].Pos()
		}
		return fns[i].Name() < fns[j].Name()
	})
	return fns
}

// Lower translates every kernel of pkg into a func.func of a fresh module.
// Blocks are laid out in reverse post-order so that every definition that
// dominates a use is declared before it.
func Lower(pkg *ssa.Package, reporter *diag.Reporter) (*ir.Context, *ir.Operation, error) {
	if pkg == nil {
		return nil, nil, errors.New("no main package found")
	}
	irctx := ir.NewContext(neura.Dialect())
	module := ir.NewModule(irctx)
	for _, fn := range Kernels(pkg) {
		l := &lowerer{
			irctx:    irctx,
			reporter: reporter,
			builder:  ir.NewBuilder(irctx),
			values:   make(map[ssa.Value]*ir.Value),
			blocks:   make(map[*ssa.BasicBlock]*ir.Block),
			consts:   make(map[constKey]*ir.Value),
		}
		f, err := l.lowerFunc(fn)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "lowering %s", fn.Name())
		}
		ir.ModuleBody(module).Append(f)
	}
	if reporter.HasErrors() {
		return nil, nil, errors.New("lowering failed")
	}
	return irctx, module, nil
}

type constKey struct {
	block *ir.Block
	value string
	typ   string
}

type lowerer struct {
	irctx    *ir.Context
	reporter *diag.Reporter
	builder  *ir.Builder
	values   map[ssa.Value]*ir.Value
	blocks   map[*ssa.BasicBlock]*ir.Block
	consts   map[constKey]*ir.Value
}

func (l *lowerer) lowerFunc(fn *ssa.Function) (*ir.Operation, error) {
	sig, err := l.signature(fn)
	if err != nil {
		return nil, err
	}
	f := ir.NewFunc(l.irctx, fn.Name(), sig, fn.Pos())
	body := ir.FuncBody(f)

	order := reversePostOrder(fn)
	for i, block := range order {
		var blk *ir.Block
		if i == 0 {
			blk = body.Entry()
			for j, p := range fn.Params {
				l.values[p] = blk.Argument(j)
			}
		} else {
			blk = ir.NewBlock()
			body.Append(blk)
		}
		l.blocks[block] = blk
		for _, instr := range block.Instrs {
			phi, ok := instr.(*ssa.Phi)
			if !ok {
				break
			}
			t, ok := IRType(phi.Type())
			if !ok {
				return nil, errors.Errorf("phi %s has unsupported type %s", phi.Name(), phi.Type())
			}
			l.values[phi] = blk.AddArgument(t)
		}
	}

	for _, block := range order {
		l.builder.SetInsertionPointToEnd(l.blocks[block])
		for _, instr := range block.Instrs {
			if err := l.lowerInstr(block, instr); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func (l *lowerer) signature(fn *ssa.Function) (ir.FunctionType, error) {
	var sig ir.FunctionType
	for _, p := range fn.Params {
		t, ok := IRType(p.Type())
		if !ok {
			return sig, errors.Errorf("parameter %s has unsupported type %s", p.Name(), p.Type())
		}
		sig.Inputs = append(sig.Inputs, t)
	}
	results := fn.Signature.Results()
	for i := 0; i < results.Len(); i++ {
		t, ok := IRType(results.At(i).Type())
		if !ok {
			return sig, errors.Errorf("result #%d has unsupported type %s", i, results.At(i).Type())
		}
		sig.Results = append(sig.Results, t)
	}
	return sig, nil
}

// reversePostOrder lays out the blocks reachable from the entry, then any
// unreachable ones in their original order.
func reversePostOrder(fn *ssa.Function) []*ssa.BasicBlock {
	type frame struct {
		block *ssa.BasicBlock
		next  int
	}
	visited := mapset.NewThreadUnsafeSet[*ssa.BasicBlock]()
	var post []*ssa.BasicBlock
	visit := func(root *ssa.BasicBlock) {
		if !visited.Add(root) {
			return
		}
		stack := []frame{{block: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.block.Succs) {
				succ := top.block.Succs[top.next]
				top.next++
				if visited.Add(succ) {
					stack = append(stack, frame{block: succ})
				}
				continue
			}
			post = append(post, top.block)
			stack = stack[:len(stack)-1]
		}
	}
	visit(fn.Blocks[0])
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	for _, block := range fn.Blocks {
		if !visited.Contains(block) {
			post = append(post, block)
			visited.Add(block)
		}
	}
	return post
}

func (l *lowerer) lowerInstr(block *ssa.BasicBlock, instr ssa.Instruction) error {
	switch inst := instr.(type) {
	case *ssa.Phi, *ssa.DebugRef:
		return nil
	case *ssa.BinOp:
		return l.lowerBinOp(inst)
	case *ssa.UnOp:
		return l.lowerUnOp(inst)
	case *ssa.Convert:
		return l.lowerConvert(inst)
	case *ssa.ChangeType:
		x, err := l.value(inst.X)
		if err != nil {
			return err
		}
		l.values[inst] = x
		return nil
	case *ssa.Jump:
		args, err := l.edgeArgs(block, 0)
		if err != nil {
			return err
		}
		neura.Br(l.builder, inst.Pos(), l.blocks[block.Succs[0]], args...)
		return nil
	case *ssa.If:
		cond, err := l.value(inst.Cond)
		if err != nil {
			return err
		}
		trueArgs, err := l.edgeArgs(block, 0)
		if err != nil {
			return err
		}
		falseArgs, err := l.edgeArgs(block, 1)
		if err != nil {
			return err
		}
		neura.CondBr(l.builder, inst.Pos(), cond,
			l.blocks[block.Succs[0]], trueArgs,
			l.blocks[block.Succs[1]], falseArgs)
		return nil
	case *ssa.Return:
		vals, err := l.valueList(inst.Results)
		if err != nil {
			return err
		}
		neura.Return(l.builder, inst.Pos(), vals...)
		return nil
	default:
		l.reporter.Error(instr.Pos(), fmt.Sprintf("cannot lower %T instruction %q", instr, instr.String()))
		return nil
	}
}

// edgeArgs returns the values block passes to the phis of its successor in
// slot index.
func (l *lowerer) edgeArgs(block *ssa.BasicBlock, index int) ([]*ir.Value, error) {
	succ := block.Succs[index]
	pred := predIndex(block, index)
	var args []*ir.Value
	for _, instr := range succ.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		v, err := l.value(phi.Edges[pred])
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// predIndex finds the position of the edge block->Succs[index] among the
// successor's predecessors. When both slots target the same block the
// second slot takes the second occurrence.
func predIndex(block *ssa.BasicBlock, index int) int {
	succ := block.Succs[index]
	nth := 0
	for i := 0; i < index; i++ {
		if block.Succs[i] == succ {
			nth++
		}
	}
	for i, p := range succ.Preds {
		if p != block {
			continue
		}
		if nth == 0 {
			return i
		}
		nth--
	}
	return -1
}

func (l *lowerer) lowerBinOp(op *ssa.BinOp) error {
	x, err := l.value(op.X)
	if err != nil {
		return err
	}
	y, err := l.value(op.Y)
	if err != nil {
		return err
	}
	float := isFloat(op.X.Type())
	signed := isSignedType(op.X.Type())

	if pred, ok := comparePredicate(op.Op, float, signed); ok {
		name := neura.ICmpOp
		if float {
			name = neura.FCmpOp
		}
		l.values[op] = neura.Compare(l.builder, op.Pos(), name, pred, x, y)
		return nil
	}

	name, ok := binOpName(op.Op, float)
	if !ok {
		l.reporter.Error(op.Pos(), fmt.Sprintf("unsupported binary operator %s", op.Op))
		return nil
	}
	t, ok := IRType(op.Type())
	if !ok {
		return errors.Errorf("binary op %s has unsupported type %s", op.Name(), op.Type())
	}
	res := neura.Binary(l.builder, op.Pos(), name, x, y, t)
	if !signed && (name == neura.DivOp || name == neura.RemOp || name == neura.ShrOp) {
		res.DefiningOp().SetAttr("unsigned", ir.BoolAttr(true))
	}
	l.values[op] = res
	return nil
}

func (l *lowerer) lowerUnOp(op *ssa.UnOp) error {
	var name string
	switch op.Op {
	case token.SUB:
		name = neura.NegOp
	case token.NOT, token.XOR:
		name = neura.NotOp
	default:
		l.reporter.Error(op.Pos(), fmt.Sprintf("unsupported unary operator %s", op.Op))
		return nil
	}
	x, err := l.value(op.X)
	if err != nil {
		return err
	}
	t, ok := IRType(op.Type())
	if !ok {
		return errors.Errorf("unary op %s has unsupported type %s", op.Name(), op.Type())
	}
	l.values[op] = neura.Unary(l.builder, op.Pos(), name, x, t)
	return nil
}

func (l *lowerer) lowerConvert(op *ssa.Convert) error {
	x, err := l.value(op.X)
	if err != nil {
		return err
	}
	t, ok := IRType(op.Type())
	if !ok {
		return errors.Errorf("conversion %s has unsupported type %s", op.Name(), op.Type())
	}
	l.values[op] = neura.Unary(l.builder, op.Pos(), neura.CastOp, x, t)
	return nil
}

func (l *lowerer) valueList(vals []ssa.Value) ([]*ir.Value, error) {
	out := make([]*ir.Value, len(vals))
	for i, v := range vals {
		lv, err := l.value(v)
		if err != nil {
			return nil, err
		}
		out[i] = lv
	}
	return out, nil
}

// value maps an SSA operand to IR. Constants are materialised once per
// block at the first use.
func (l *lowerer) value(v ssa.Value) (*ir.Value, error) {
	if c, ok := v.(*ssa.Const); ok {
		return l.constant(c)
	}
	if lv, ok := l.values[v]; ok {
		return lv, nil
	}
	return nil, errors.Errorf("value %s (%T) has no lowering", v.Name(), v)
}

func (l *lowerer) constant(c *ssa.Const) (*ir.Value, error) {
	t, ok := IRType(c.Type())
	if !ok || c.Value == nil {
		return nil, errors.Errorf("constant %s has unsupported type %s", c.String(), c.Type())
	}
	blk := l.builder.InsertionBlock()
	key := constKey{block: blk, value: c.Value.ExactString(), typ: t.String()}
	if v, ok := l.consts[key]; ok {
		return v, nil
	}

	var attr ir.Attribute
	switch c.Value.Kind() {
	case constant.Bool:
		var bit int64
		if constant.BoolVal(c.Value) {
			bit = 1
		}
		attr = ir.IntAttr{Value: bit, Type: t}
	case constant.Float:
		f, _ := constant.Float64Val(c.Value)
		attr = ir.FloatAttr{Value: f, Type: t}
	case constant.Int:
		if isFloat(c.Type()) {
			f, _ := constant.Float64Val(c.Value)
			attr = ir.FloatAttr{Value: f, Type: t}
			break
		}
		if i, exact := constant.Int64Val(c.Value); exact {
			attr = ir.IntAttr{Value: i, Type: t}
			break
		}
		u, _ := constant.Uint64Val(c.Value)
		attr = ir.IntAttr{Value: int64(u), Type: t}
	default:
		return nil, errors.Errorf("constant %s of kind %s is not supported", c.String(), c.Value.Kind())
	}
	v := neura.Constant(l.builder, c.Pos(), attr, t)
	l.consts[key] = v
	return v, nil
}

// IRType maps a Go basic type to its IR type.
func IRType(t types.Type) (ir.Type, bool) {
	basic, ok := t.Underlying().(*types.Basic)
	if !ok {
		return nil, false
	}
	switch basic.Kind() {
	case types.Float32:
		return ir.F32, true
	case types.Float64, types.UntypedFloat:
		return ir.F64, true
	case types.String, types.UntypedString, types.UnsafePointer, types.UntypedNil,
		types.Complex64, types.Complex128, types.UntypedComplex, types.Uintptr:
		return nil, false
	}
	width, _ := widthForBasic(basic)
	return ir.IntType{Width: width}, true
}

func widthForBasic(b *types.Basic) (int, bool) {
	switch b.Kind() {
	case types.Int8:
		return 8, true
	case types.Uint8:
		return 8, false
	case types.Int16:
		return 16, true
	case types.Uint16:
		return 16, false
	case types.Int32, types.Int:
		return 32, true
	case types.Uint32, types.Uint:
		return 32, false
	case types.Int64:
		return 64, true
	case types.Uint64:
		return 64, false
	case types.Bool, types.UntypedBool:
		return 1, false
	default:
		return 32, true
	}
}

func isSignedType(t types.Type) bool {
	if basic, ok := t.Underlying().(*types.Basic); ok {
		return basic.Info()&types.IsUnsigned == 0
	}
	return true
}

func isFloat(t types.Type) bool {
	basic, ok := t.Underlying().(*types.Basic)
	return ok && basic.Info()&types.IsFloat != 0
}

func binOpName(tok token.Token, float bool) (string, bool) {
	if float {
		switch tok {
		case token.ADD:
			return neura.FAddOp, true
		case token.SUB:
			return neura.FSubOp, true
		case token.MUL:
			return neura.FMulOp, true
		case token.QUO:
			return neura.FDivOp, true
		}
		return "", false
	}
	switch tok {
	case token.ADD:
		return neura.AddOp, true
	case token.SUB:
		return neura.SubOp, true
	case token.MUL:
		return neura.MulOp, true
	case token.QUO:
		return neura.DivOp, true
	case token.REM:
		return neura.RemOp, true
	case token.AND:
		return neura.AndOp, true
	case token.OR:
		return neura.OrOp, true
	case token.XOR:
		return neura.XorOp, true
	case token.SHL:
		return neura.ShlOp, true
	case token.SHR:
		return neura.ShrOp, true
	}
	return "", false
}

func comparePredicate(tok token.Token, float, signed bool) (string, bool) {
	if float {
		switch tok {
		case token.EQL:
			return "oeq", true
		case token.NEQ:
			return "one", true
		case token.LSS:
			return "olt", true
		case token.LEQ:
			return "ole", true
		case token.GTR:
			return "ogt", true
		case token.GEQ:
			return "oge", true
		}
		return "", false
	}
	prefix := "s"
	if !signed {
		prefix = "u"
	}
	switch tok {
	case token.EQL:
		return "eq", true
	case token.NEQ:
		return "ne", true
	case token.LSS:
		return prefix + "lt", true
	case token.LEQ:
		return prefix + "le", true
	case token.GTR:
		return prefix + "gt", true
	case token.GEQ:
		return prefix + "ge", true
	}
	return "", false
}
