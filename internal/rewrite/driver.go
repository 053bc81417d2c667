// Package rewrite applies local graph rewrites greedily until a region
// reaches a fixpoint.
package rewrite

import (
	"context"

	"github.com/containerd/log"
	"github.com/pkg/errors"

	"neuraflow/internal/ir"
)

// DefaultMaxIterations bounds the number of sweeps over a region.
const DefaultMaxIterations = 10

// ErrNotConverged is returned when a region still changes after the
// maximum number of sweeps.
var ErrNotConverged = errors.New("greedy rewrite did not converge")

// Pattern matches one operation and rewrites it through the rewriter.
// Returning false declines the match without touching the graph; a non-nil
// error aborts the whole driver.
type Pattern interface {
	Name() string
	MatchAndRewrite(op *ir.Operation, rw *Rewriter) (bool, error)
}

// Rewriter is handed to patterns. Its insertion point is set right before
// the operation being matched.
type Rewriter struct {
	*ir.Builder
}

// ReplaceOp rewires every use of op's results to vals and erases op.
func (rw *Rewriter) ReplaceOp(op *ir.Operation, vals []*ir.Value) {
	for i, res := range op.Results() {
		res.ReplaceAllUsesWith(vals[i])
	}
	op.Erase()
}

// ReplaceOpWithOp replaces op by the results of newOp.
func (rw *Rewriter) ReplaceOpWithOp(op, newOp *ir.Operation) {
	rw.ReplaceOp(op, newOp.Results())
}

// Stats summarises one driver run.
type Stats struct {
	Iterations int
	Rewrites   int
}

// Driver applies patterns to regions until no pattern matches.
type Driver struct {
	IR            *ir.Context
	Patterns      []Pattern
	MaxIterations int
}

// Apply rewrites every operation nested in region until a full sweep makes
// no change. Each sweep works on a snapshot of the region's operations so
// that patterns may insert and erase freely.
func (d *Driver) Apply(ctx context.Context, region *ir.Region) (Stats, error) {
	maxIter := d.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	rw := &Rewriter{Builder: ir.NewBuilder(d.IR)}
	var stats Stats
	for stats.Iterations < maxIter {
		stats.Iterations++
		var worklist []*ir.Operation
		region.Walk(func(op *ir.Operation) {
			worklist = append(worklist, op)
		})
		changed := false
		for _, op := range worklist {
			if op.Erased() || op.Block() == nil {
				continue
			}
			matched, err := d.applyOne(op, rw)
			if err != nil {
				return stats, err
			}
			if matched {
				changed = true
				stats.Rewrites++
			}
		}
		if !changed {
			log.G(ctx).WithFields(log.Fields{
				"iterations": stats.Iterations,
				"rewrites":   stats.Rewrites,
			}).Debug("greedy rewrite converged")
			return stats, nil
		}
	}
	return stats, errors.Wrapf(ErrNotConverged, "region still changing after %d iterations", maxIter)
}

func (d *Driver) applyOne(op *ir.Operation, rw *Rewriter) (bool, error) {
	for _, p := range d.Patterns {
		rw.SetInsertionPoint(op)
		matched, err := p.MatchAndRewrite(op, rw)
		if err != nil {
			return false, errors.Wrapf(err, "pattern %s on %s", p.Name(), op.Name())
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}
