// Package passes hosts the pass manager and the graph transforms that turn
// control-flow IR into flat, move-annotated dataflow IR.
package passes

import (
	"context"
	"time"

	"github.com/containerd/log"
	"github.com/pkg/errors"

	"neuraflow/internal/diag"
	"neuraflow/internal/ir"
	"neuraflow/internal/neura"
)

// ErrDialectNotLoaded is returned when a pass runs in a context missing one
// of its dependent dialects.
var ErrDialectNotLoaded = errors.New("dialect not loaded")

// Pass is one named, independently invocable stage.
type Pass interface {
	Name() string
	Description() string
	// DependentDialects lists the namespaces the pass creates or matches
	// operations from.
	DependentDialects() []string
	Run(ctx context.Context, irctx *ir.Context, module *ir.Operation) error
}

// Options are shared by every pass built for one pipeline run.
type Options struct {
	Reporter      *diag.Reporter
	Stats         *Statistics
	StrictEdges   bool
	MaxIterations int
	Verify        bool
}

// available maps namespaces a pass may depend on to their definitions.
var available = map[string]*ir.Dialect{
	neura.Namespace: neura.Dialect(),
}

// Manager runs passes in order over a module.
type Manager struct {
	passes []Pass
	opts   Options
}

// NewManager returns an empty pipeline.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts}
}

// Add appends a pass to the pipeline.
func (m *Manager) Add(p Pass) {
	m.passes = append(m.passes, p)
}

// Passes returns the pipeline in run order.
func (m *Manager) Passes() []Pass {
	return append([]Pass(nil), m.passes...)
}

// Run executes every pass. The first failure aborts the pipeline; the
// module is not valid output after a failure.
func (m *Manager) Run(ctx context.Context, irctx *ir.Context, module *ir.Operation) error {
	if module == nil {
		return errors.New("pass manager requires a non-nil module")
	}
	for _, p := range m.passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := loadDependentDialects(irctx, p); err != nil {
			return err
		}
		logger := log.G(ctx).WithField("pass", p.Name())
		logger.Debug("running pass")
		start := time.Now()
		if err := p.Run(ctx, irctx, module); err != nil {
			return errors.Wrapf(err, "pass %s", p.Name())
		}
		if m.opts.Verify {
			if err := ir.Verify(module); err != nil {
				return errors.Wrapf(err, "verification after %s", p.Name())
			}
		}
		logger.WithField("duration", time.Since(start)).Debug("pass finished")
	}
	return nil
}

func loadDependentDialects(irctx *ir.Context, p Pass) error {
	for _, ns := range p.DependentDialects() {
		if irctx.IsLoaded(ns) {
			continue
		}
		d, ok := available[ns]
		if !ok {
			return errors.Wrapf(ErrDialectNotLoaded, "pass %s depends on unknown dialect %q", p.Name(), ns)
		}
		irctx.Load(d)
	}
	return nil
}

func requireDialects(irctx *ir.Context, p Pass) error {
	for _, ns := range p.DependentDialects() {
		if !irctx.IsLoaded(ns) {
			return errors.Wrapf(ErrDialectNotLoaded, "pass %s requires dialect %q", p.Name(), ns)
		}
	}
	return nil
}
