package ir

import (
	"fmt"
	"io"
	"strings"
)

// Namer hands out stable printing names for values and blocks.
type Namer struct {
	values map[*Value]string
	next   int
}

// NewNamer numbers every value defined under op in definition order, so that
// forward references print with the number of their definition.
func NewNamer(op *Operation) *Namer {
	n := &Namer{values: make(map[*Value]string)}
	Walk(op, func(o *Operation) {
		for _, r := range o.regions {
			for _, b := range r.blocks {
				for _, arg := range b.args {
					n.Value(arg)
				}
			}
		}
		for _, res := range o.results {
			n.Value(res)
		}
	})
	return n
}

// Value returns the %-name of v, assigning the next number on first sight.
func (n *Namer) Value(v *Value) string {
	if v == nil {
		return "%<null>"
	}
	if name, ok := n.values[v]; ok {
		return name
	}
	name := fmt.Sprintf("%%%d", n.next)
	n.next++
	n.values[v] = name
	return name
}

// Values joins the names of vals with commas.
func (n *Namer) Values(vals []*Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = n.Value(v)
	}
	return strings.Join(parts, ", ")
}

// BlockName returns ^bbN where N is the block's declaration index.
func BlockName(b *Block) string {
	return fmt.Sprintf("^bb%d", b.Index())
}

// Dump writes a compact human-readable listing of op.
func Dump(op *Operation, w io.Writer) {
	if op == nil {
		fmt.Fprintln(w, "<nil operation>")
		return
	}
	d := &dumper{w: w, names: NewNamer(op)}
	d.dumpOp(op, 0)
}

type dumper struct {
	w     io.Writer
	names *Namer
}

func (d *dumper) dumpOp(op *Operation, depth int) {
	indent := strings.Repeat("  ", depth)
	switch {
	case op.Is(ModuleOpName):
		fmt.Fprintf(d.w, "%smodule\n", indent)
	case op.Is(FuncOpName):
		fmt.Fprintf(d.w, "%sfunc @%s %s\n", indent, FuncName(op), op.Attr("function_type"))
	default:
		fmt.Fprintf(d.w, "%s%s\n", indent, d.renderOp(op))
		if len(op.regions) == 0 {
			return
		}
	}
	for _, r := range op.regions {
		for _, b := range r.blocks {
			d.dumpBlock(b, depth+1)
		}
	}
}

func (d *dumper) dumpBlock(b *Block, depth int) {
	indent := strings.Repeat("  ", depth)
	args := make([]string, len(b.args))
	for i, a := range b.args {
		args[i] = fmt.Sprintf("%s: %s", d.names.Value(a), a.typ)
	}
	preds := b.Predecessors()
	predNames := make([]string, len(preds))
	for i, e := range preds {
		predNames[i] = BlockName(e.From)
	}
	predList := "none"
	if len(predNames) > 0 {
		predList = strings.Join(predNames, " ")
	}
	if b.parent != nil && b.parent.parent.Is(ModuleOpName) {
		for _, op := range b.ops {
			d.dumpOp(op, depth)
		}
		return
	}
	fmt.Fprintf(d.w, "%sblock %s(%s) preds: %s\n", indent, BlockName(b), strings.Join(args, ", "), predList)
	for _, op := range b.ops {
		d.dumpOp(op, depth+1)
	}
}

func (d *dumper) renderOp(op *Operation) string {
	var sb strings.Builder
	if len(op.results) > 0 {
		sb.WriteString(d.names.Values(op.results))
		sb.WriteString(" = ")
	}
	sb.WriteString(op.name)
	if len(op.operands) > 0 {
		sb.WriteString(" ")
		sb.WriteString(d.names.Values(op.Operands()))
	}
	if len(op.successors) > 0 {
		succs := make([]string, len(op.successors))
		for i, s := range op.successors {
			succs[i] = BlockName(s)
		}
		sb.WriteString(" -> ")
		sb.WriteString(strings.Join(succs, ", "))
	}
	if len(op.attrs) > 0 {
		attrs := make([]string, len(op.attrs))
		for i, a := range op.attrs {
			attrs[i] = fmt.Sprintf("%s = %s", a.Name, a.Value)
		}
		sb.WriteString(" {")
		sb.WriteString(strings.Join(attrs, ", "))
		sb.WriteString("}")
	}
	if len(op.results) > 0 {
		sb.WriteString(" : ")
		sb.WriteString(typeList(op.ResultTypes()))
	}
	return sb.String()
}
