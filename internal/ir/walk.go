package ir

import "go/token"

// Walk calls fn for op and every operation nested in its regions, in
// pre-order. Each block is snapshotted before it is visited, so fn may erase
// or insert operations around the one it is given.
func Walk(op *Operation, fn func(*Operation)) {
	fn(op)
	if op.erased {
		return
	}
	for _, r := range op.regions {
		r.Walk(fn)
	}
}

// Walk visits every operation nested in r in pre-order.
func (r *Region) Walk(fn func(*Operation)) {
	for _, b := range r.Blocks() {
		for _, op := range b.Operations() {
			if op.erased {
				continue
			}
			Walk(op, fn)
		}
	}
}

// NewModule returns an empty builtin.module.
func NewModule(ctx *Context) *Operation {
	state := NewOperationState(ModuleOpName, token.NoPos).AddRegion(NewRegion(NewBlock()))
	return ctx.Create(state)
}

// ModuleBody returns the single block of a module.
func ModuleBody(module *Operation) *Block {
	return module.Region(0).Entry()
}

// NewFunc returns a func.func with an entry block whose arguments match the
// signature inputs. The caller appends it to a module body.
func NewFunc(ctx *Context, name string, sig FunctionType, loc token.Pos) *Operation {
	state := NewOperationState(FuncOpName, loc).
		AddAttr("sym_name", StringAttr(name)).
		AddAttr("function_type", TypeAttr{Type: sig}).
		AddRegion(NewRegion(NewBlock(sig.Inputs...)))
	return ctx.Create(state)
}

// FuncName returns the symbol name of a func.func.
func FuncName(fn *Operation) string {
	if s, ok := fn.Attr("sym_name").(StringAttr); ok {
		return string(s)
	}
	return ""
}

// FuncBody returns the body region of a func.func.
func FuncBody(fn *Operation) *Region {
	return fn.Region(0)
}

// Funcs returns every func.func nested anywhere under op, in walk order.
func Funcs(op *Operation) []*Operation {
	var out []*Operation
	Walk(op, func(o *Operation) {
		if o.Is(FuncOpName) {
			out = append(out, o)
		}
	})
	return out
}
