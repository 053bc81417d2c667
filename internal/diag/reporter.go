// Package diag collects and prints compiler diagnostics.
package diag

import (
	"encoding/json"
	"fmt"
	"go/token"
	"io"
	"sync"
)

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is one reported message.
type Diagnostic struct {
	Severity Severity
	Pos      token.Pos
	Message  string
}

// Reporter prints diagnostics as they arrive and remembers them. It is safe
// for concurrent use by independent compilation units.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	format   string
	fset     *token.FileSet
	diags    []Diagnostic
	errCount int
}

// NewReporter writes diagnostics to w in "text" or "json" format.
func NewReporter(w io.Writer, format string) *Reporter {
	if format != "json" {
		format = "text"
	}
	return &Reporter{w: w, format: format}
}

// SetFileSet enables position rendering for token.Pos values.
func (r *Reporter) SetFileSet(fset *token.FileSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fset = fset
}

// Error reports an error at pos.
func (r *Reporter) Error(pos token.Pos, msg string) {
	r.report(SeverityError, pos, msg)
}

// Errorf reports an error without a position.
func (r *Reporter) Errorf(format string, args ...interface{}) {
	r.report(SeverityError, token.NoPos, fmt.Sprintf(format, args...))
}

// Warning reports a warning at pos.
func (r *Reporter) Warning(pos token.Pos, msg string) {
	r.report(SeverityWarning, pos, msg)
}

// Warningf reports a formatted warning at pos.
func (r *Reporter) Warningf(pos token.Pos, format string, args ...interface{}) {
	r.report(SeverityWarning, pos, fmt.Sprintf(format, args...))
}

// HasErrors reports whether any error was reported.
func (r *Reporter) HasErrors() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errCount > 0
}

// ErrorCount returns the number of errors reported so far.
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errCount
}

// Diagnostics returns a copy of everything reported so far.
func (r *Reporter) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.diags...)
}

func (r *Reporter) report(sev Severity, pos token.Pos, msg string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags = append(r.diags, Diagnostic{Severity: sev, Pos: pos, Message: msg})
	if sev == SeverityError {
		r.errCount++
	}
	if r.w == nil {
		return
	}
	where := r.position(pos)
	if r.format == "json" {
		entry := struct {
			Severity string `json:"severity"`
			Position string `json:"position,omitempty"`
			Message  string `json:"message"`
		}{sev.String(), where, msg}
		data, _ := json.Marshal(entry)
		fmt.Fprintf(r.w, "%s\n", data)
		return
	}
	if where != "" {
		fmt.Fprintf(r.w, "%s: %s: %s\n", where, sev, msg)
		return
	}
	fmt.Fprintf(r.w, "%s: %s\n", sev, msg)
}

func (r *Reporter) position(pos token.Pos) string {
	if r.fset == nil || !pos.IsValid() {
		return ""
	}
	return r.fset.Position(pos).String()
}
