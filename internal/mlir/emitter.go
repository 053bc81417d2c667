package mlir

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"neuraflow/internal/ir"
)

// Emit writes the MLIR representation of module to outputPath. When
// outputPath is empty or "-", the result is written to stdout.
func Emit(module *ir.Operation, outputPath string) error {
	if outputPath == "" || outputPath == "-" {
		return Write(os.Stdout, module)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrap(err, "creating MLIR output")
	}
	if err := Write(f, module); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "closing %s", outputPath)
}

// Write prints module in MLIR generic operation syntax. Every operation
// other than the top-level module is printed as
//
//	%r = "dialect.op"(%a, %b)[^succ] ({regions}) {attrs} : (operand types) -> result types
//
// so the output parses with stock mlir-opt without the neura dialect being
// registered.
func Write(w io.Writer, module *ir.Operation) error {
	if module == nil || !module.Is(ir.ModuleOpName) {
		return errors.New("expected a builtin.module")
	}
	pr := &printer{w: w, names: ir.NewNamer(module)}
	fmt.Fprintln(w, "module {")
	pr.indent++
	for _, op := range ir.ModuleBody(module).Operations() {
		pr.emitOp(op)
	}
	pr.indent--
	fmt.Fprintln(w, "}")
	return pr.err
}

type printer struct {
	w      io.Writer
	indent int
	names  *ir.Namer
	err    error
}

func (p *printer) emitOp(op *ir.Operation) {
	p.printIndent()
	if op.NumResults() > 0 {
		fmt.Fprintf(p.w, "%s = ", p.names.Values(op.Results()))
	}
	fmt.Fprintf(p.w, "%q(%s)", op.Name(), p.names.Values(op.Operands()))

	if op.NumSuccessors() > 0 {
		succs := make([]string, op.NumSuccessors())
		for i, s := range op.Successors() {
			succs[i] = ir.BlockName(s)
		}
		fmt.Fprintf(p.w, "[%s]", strings.Join(succs, ", "))
	}

	if regions := op.Regions(); len(regions) > 0 {
		fmt.Fprint(p.w, " (")
		for i, r := range regions {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			p.emitRegion(r)
		}
		fmt.Fprint(p.w, ")")
	}

	if attrs := op.Attrs(); len(attrs) > 0 {
		parts := make([]string, len(attrs))
		for i, a := range attrs {
			parts[i] = fmt.Sprintf("%s = %s", a.Name, attrString(a.Value))
		}
		fmt.Fprintf(p.w, " {%s}", strings.Join(parts, ", "))
	}

	operandTypes := make([]ir.Type, op.NumOperands())
	for i, v := range op.Operands() {
		if v == nil {
			p.fail(errors.Errorf("%s has a null operand #%d", op.Name(), i))
			operandTypes[i] = ir.NoneType{}
			continue
		}
		operandTypes[i] = v.Type()
	}
	fmt.Fprintf(p.w, " : %s -> %s\n", ir.FormatTypes(operandTypes), ir.FormatResultTypes(op.ResultTypes()))
}

func (p *printer) emitRegion(r *ir.Region) {
	fmt.Fprintln(p.w, "{")
	for _, b := range r.Blocks() {
		p.printIndent()
		args := make([]string, b.NumArguments())
		for i, a := range b.Arguments() {
			args[i] = fmt.Sprintf("%s: %s", p.names.Value(a), a.Type())
		}
		if len(args) > 0 {
			fmt.Fprintf(p.w, "%s(%s):\n", ir.BlockName(b), strings.Join(args, ", "))
		} else {
			fmt.Fprintf(p.w, "%s:\n", ir.BlockName(b))
		}
		p.indent++
		for _, op := range b.Operations() {
			p.emitOp(op)
		}
		p.indent--
	}
	p.printIndent()
	fmt.Fprint(p.w, "}")
}

// attrString renders a nil attribute as a unit attribute.
func attrString(a ir.Attribute) string {
	if a == nil {
		return "unit"
	}
	return a.String()
}

func (p *printer) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *printer) printIndent() {
	for i := 0; i < p.indent; i++ {
		fmt.Fprint(p.w, "  ")
	}
}
