package stacking

import (
	"fmt"

	"github.com/framefin/framefin/pkg/mir"
	"github.com/framefin/framefin/pkg/target"
)

// replaceFrameIndices rewrites every frame-index operand into a concrete
// register base plus offset. Blocks are visited in depth-first order so
// each block inherits the stack adjustment its tree predecessor ends
// with; blocks unreachable from the entry are rewritten with a zero
// adjustment.
func (p *Pass) replaceFrameIndices(fn *mir.Function) {
	if !fn.Frame.HasStackObjects() {
		return
	}

	visited := make(map[*mir.Block]bool)
	var visit func(b *mir.Block, spAdj int64)
	visit = func(b *mir.Block, spAdj int64) {
		visited[b] = true
		exitAdj := p.replaceFrameIndicesInBlock(fn, b, spAdj)
		for _, s := range b.Succs {
			if !visited[s] {
				visit(s, exitAdj)
			}
		}
	}
	visit(fn.Entry(), 0)

	for _, b := range fn.Blocks {
		if !visited[b] {
			p.replaceFrameIndicesInBlock(fn, b, 0)
		}
	}
}

// replaceFrameIndicesInBlock rewrites one block and returns the stack
// adjustment in effect at its exit.
func (p *Pass) replaceFrameIndicesInBlock(fn *mir.Function, b *mir.Block, spAdj int64) int64 {
	growsDown := p.tgt.StackGrowthDirection() == target.StackGrowsDown
	setupOp := p.tgt.CallFrameSetupOp()
	destroyOp := p.tgt.CallFrameDestroyOp()

	if p.rs != nil && !p.frameIndexVirtualScavenging {
		p.rs.EnterBlock(fn, b)
	}

	for i := b.First(); i != nil; {
		if setupOp != mir.OpcodeInvalid && (i.Op == setupOp || i.Op == destroyOp) {
			// Call frame markers track the pending adjustment. The sign
			// convention makes the adjustment positive between setup and
			// destroy regardless of growth direction.
			amount := markerAmount(i)
			if (!growsDown && i.Op == setupOp) || (growsDown && i.Op == destroyOp) {
				amount = -amount
			}
			spAdj += amount

			atBegin := i == b.First()
			var before *mir.Instr
			if !atBegin {
				before = i.Prev()
			}
			p.tgt.EliminateCallFrameMarker(fn, b, i)
			if atBegin {
				i = b.First()
			} else {
				i = before.Next()
			}
			continue
		}

		opIdx := i.HasFrameIndex()
		if opIdx < 0 {
			if p.rs != nil && !p.frameIndexVirtualScavenging {
				p.rs.Forward(i)
			}
			i = i.Next()
			continue
		}

		if i.IsFrameMeta() {
			// Debug metadata references a frame index alongside an
			// offset it must keep; fold the object address into the
			// offset and drop the index operand to a register reference.
			idx := i.Operands[opIdx].Index
			reg, off := p.tgt.FrameIndexReference(fn, idx)
			i.Operands[opIdx] = mir.RegOp(reg)
			if opIdx+1 < len(i.Operands) && i.Operands[opIdx+1].Kind == mir.OpImm {
				i.Operands[opIdx+1].Imm += off
			} else {
				panic(fmt.Sprintf("stacking: frame metadata without offset operand in %s", fn.Name))
			}
			if p.rs != nil && !p.frameIndexVirtualScavenging {
				p.rs.Forward(i)
			}
			i = i.Next()
			continue
		}

		atBegin := i == b.First()
		var before *mir.Instr
		if !atBegin {
			before = i.Prev()
		}

		// The target may delete i, replace it, or insert new code around
		// it; resume at the first instruction it produced so expansions
		// are processed too. Under virtual scavenging the target takes
		// scratch registers from the virtual pool instead of the oracle.
		var rs target.Scavenger
		if !p.frameIndexVirtualScavenging {
			rs = p.scavengerHook()
		}
		p.tgt.ResolveFrameIndex(fn, i, opIdx, spAdj, rs)

		if atBegin {
			i = b.First()
		} else {
			i = before.Next()
		}
	}

	return spAdj
}

// markerAmount extracts the size operand of a call frame marker.
func markerAmount(i *mir.Instr) int64 {
	for _, op := range i.Operands {
		if op.Kind == mir.OpImm {
			return op.Imm
		}
	}
	panic("stacking: call frame marker without size operand")
}
