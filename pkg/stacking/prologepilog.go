package stacking

import (
	"github.com/framefin/framefin/pkg/mir"
)

// insertPrologEpilog emits the frame setup into the entry block and the
// frame teardown into every return block, then applies the variants some
// functions need: segmented stack checks and the alternate prologue for
// functions on the alternate calling convention.
func (p *Pass) insertPrologEpilog(fn *mir.Function) {
	p.tgt.EmitPrologue(fn)

	for _, b := range p.returnBlocks {
		p.tgt.EmitEpilogue(fn, b)
	}

	if p.cfg.EnableSegmentedStacks {
		p.tgt.AdjustForSegmentedStacks(fn)
	}

	if fn.CallConv == mir.CallConvAltStack {
		p.tgt.AdjustForAltPrologue(fn)
	}
}
