package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

const accumulateKernel = `package main

func accumulate(n int32) int32 {
	var acc int32
	for i := int32(0); i < n; i++ {
		acc += i
	}
	return acc
}

func main() {}
`

const goroutineKernel = `package main

func worker() {}

func main() {
	go worker()
}
`

// writeKernel writes source into its own module directory and returns the
// path of the Go file.
func writeKernel(t *testing.T, source string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module testcase\n\ngo 1.21\n")
	return writeFile(t, dir, "main.go", source)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPassesListsRegisteredStages(t *testing.T) {
	out, _, err := execute(t, "passes")
	assert.NilError(t, err)
	assert.Check(t, is.Contains(out, "transform-ctrl-to-data-flow"))
	assert.Check(t, is.Contains(out, "Transforms control flow into data flow using predicated execution"))
	assert.Check(t, is.Contains(out, "insert-data-mov"))
}

func TestCompileEmitsDataflowMLIR(t *testing.T) {
	src := writeKernel(t, accumulateKernel)
	out, stderr, err := execute(t, "compile", src)
	assert.NilError(t, err, stderr)

	for _, want := range []string{`"neura.phi"`, `"neura.reserve"`, `"neura.ctrl_mov"`, `"neura.data_mov"`, "graph_region = true"} {
		assert.Check(t, is.Contains(out, want))
	}
	assert.Check(t, !strings.Contains(out, `"neura.br"`), out)
	assert.Check(t, !strings.Contains(out, `"neura.cond_br"`), out)
}

func TestCompileWithoutPassesKeepsControlFlow(t *testing.T) {
	src := writeKernel(t, accumulateKernel)
	out, stderr, err := execute(t, "compile", "--no-passes", "--emit", "ir", src)
	assert.NilError(t, err, stderr)
	assert.Check(t, is.Contains(out, "func @accumulate (i32) -> i32"))
	assert.Check(t, is.Contains(out, "neura.cond_br"))
	assert.Check(t, !strings.Contains(out, "neura.phi"))
}

func TestCompileEmitsSSA(t *testing.T) {
	src := writeKernel(t, accumulateKernel)
	out, stderr, err := execute(t, "compile", "--emit", "ssa", src)
	assert.NilError(t, err, stderr)
	assert.Check(t, is.Contains(out, "accumulate"))
	assert.Check(t, is.Contains(out, "phi"))
}

func TestCompileConfigAndFlagOverrides(t *testing.T) {
	src := writeKernel(t, accumulateKernel)
	cfgPath := writeFile(t, t.TempDir(), "neuraflow.toml", `passes = ["transform-ctrl-to-data-flow"]`+"\n")

	out, stderr, err := execute(t, "compile", "--config", cfgPath, "--pass-statistics", src)
	assert.NilError(t, err, stderr)
	assert.Check(t, is.Contains(out, `"neura.phi"`))
	assert.Check(t, !strings.Contains(out, `"neura.data_mov"`))
	assert.Check(t, is.Contains(stderr, "placeholders"))

	out, stderr, err = execute(t, "compile", "--config", cfgPath, "--passes", "transform-ctrl-to-data-flow, insert-data-mov", src)
	assert.NilError(t, err, stderr)
	assert.Check(t, is.Contains(out, `"neura.data_mov"`))
}

func TestCompileWritesOutputsInInputOrder(t *testing.T) {
	alpha := writeKernel(t, "package main\n\nfunc alpha(x int32) int32 { return x + 1 }\n\nfunc main() {}\n")
	beta := writeKernel(t, "package main\n\nfunc beta(x int32) int32 { return x * 2 }\n\nfunc main() {}\n")
	outPath := filepath.Join(t.TempDir(), "out.mlir")

	_, stderr, err := execute(t, "compile", "-j", "2", "-o", outPath, beta, alpha)
	assert.NilError(t, err, stderr)
	data, err := os.ReadFile(outPath)
	assert.NilError(t, err)
	out := string(data)
	b, a := strings.Index(out, `sym_name = "beta"`), strings.Index(out, `sym_name = "alpha"`)
	assert.Assert(t, b >= 0 && a >= 0, out)
	assert.Check(t, b < a, "outputs not in input order:\n%s", out)
}

func TestCompileRejectsBadOptions(t *testing.T) {
	src := writeKernel(t, accumulateKernel)

	_, _, err := execute(t, "compile", "--emit", "verilog", src)
	assert.Check(t, is.ErrorContains(err, "unknown emit format: verilog"))

	_, _, err = execute(t, "compile", "--passes", "canonicalize", src)
	assert.Check(t, is.ErrorContains(err, `unknown pass "canonicalize"`))

	_, _, err = execute(t, "compile", "--diag-format", "xml", src)
	assert.Check(t, is.ErrorContains(err, "diag_format must be text or json"))

	_, _, err = execute(t, "compile")
	assert.Check(t, err != nil)
}

func TestCompileReportsValidationFailures(t *testing.T) {
	src := writeKernel(t, goroutineKernel)
	_, stderr, err := execute(t, "compile", src)
	assert.Check(t, is.ErrorContains(err, "validation failed"))
	assert.Check(t, is.Contains(stderr, "goroutines are not supported"))
}

func TestLint(t *testing.T) {
	good := writeKernel(t, accumulateKernel)
	_, stderr, err := execute(t, "lint", good)
	assert.NilError(t, err)
	assert.Equal(t, stderr, "")

	bad := writeKernel(t, goroutineKernel)
	_, stderr, err = execute(t, "lint", "--diag-format", "json", good, bad)
	assert.Check(t, is.ErrorContains(err, "lint failed for 1 of 2 input(s)"))
	assert.Check(t, is.Contains(stderr, `"severity":"error"`))
	assert.Check(t, is.Contains(stderr, "goroutines are not supported"))
}
