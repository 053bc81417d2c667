package passes

import (
	mapset "github.com/deckarep/golang-set/v2"

	"neuraflow/internal/ir"
)

// PostOrder returns every block of region exactly once, each block after all
// of its not-yet-visited successors. The walk starts at the entry block, so
// the entry comes last among the blocks it reaches; blocks unreachable from
// the entry are walked afterwards as extra roots in declaration order.
//
// The traversal keeps an explicit stack of frames and visits successors in
// terminator order, giving the same sequence as a recursive depth-first
// search without its depth limit. Back edges are not re-descended, so with
// loops the result is not a topological order.
func PostOrder(region *ir.Region) []*ir.Block {
	blocks := region.Blocks()
	if len(blocks) == 0 {
		return nil
	}

	type frame struct {
		block *ir.Block
		succs []*ir.Block
		next  int
	}

	visited := mapset.NewThreadUnsafeSet[*ir.Block]()
	order := make([]*ir.Block, 0, len(blocks))
	walk := func(root *ir.Block) {
		if !visited.Add(root) {
			return
		}
		stack := []frame{{block: root, succs: root.Successors()}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.succs) {
				succ := top.succs[top.next]
				top.next++
				if visited.Add(succ) {
					stack = append(stack, frame{block: succ, succs: succ.Successors()})
				}
				continue
			}
			order = append(order, top.block)
			stack = stack[:len(stack)-1]
		}
	}

	walk(blocks[0])
	for _, b := range blocks[1:] {
		walk(b)
	}
	return order
}
