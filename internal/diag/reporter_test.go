package diag

import (
	"bytes"
	"go/token"
	"strings"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
)

func TestReporterTextFormat(t *testing.T) {
	fset := token.NewFileSet()
	file := fset.AddFile("kernel.go", -1, 100)
	file.SetLines([]int{0, 10, 20})
	pos := file.Pos(12)

	var buf bytes.Buffer
	r := NewReporter(&buf, "text")
	r.SetFileSet(fset)
	r.Warning(pos, "edge skipped")
	r.Errorf("%d blocks left", 2)

	want := "kernel.go:2:3: warning: edge skipped\nerror: 2 blocks left\n"
	assert.Equal(t, buf.String(), want)
	assert.Assert(t, r.HasErrors())
	assert.Equal(t, r.ErrorCount(), 1)
	assert.Equal(t, len(r.Diagnostics()), 2)
}

func TestReporterJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, "json")
	r.Error(token.NoPos, "bad")
	r.Warningf(token.NoPos, "odd %s", "edge")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.DeepEqual(t, lines, []string{
		`{"severity":"error","message":"bad"}`,
		`{"severity":"warning","message":"odd edge"}`,
	})
}

func TestNilReporterDiscards(t *testing.T) {
	var r *Reporter
	r.Warning(token.NoPos, "ignored")
	r.Error(token.NoPos, "ignored")
	assert.Assert(t, !r.HasErrors())
}

func TestReporterConcurrentUse(t *testing.T) {
	r := NewReporter(nil, "text")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Error(token.NoPos, "unit failed")
		}()
	}
	wg.Wait()
	assert.Equal(t, r.ErrorCount(), 8)
}
