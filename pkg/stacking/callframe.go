package stacking

import "github.com/framefin/framefin/pkg/mir"

// calculateCallFrameInfo computes MaxCallFrameSize and AdjustsStack from the
// call frame markers, then eliminates the markers where the target folds
// call frames into the fixed frame. Targets without markers skip the scan.
func (p *Pass) calculateCallFrameInfo(fn *mir.Function) {
	setupOp := p.tgt.CallFrameSetupOp()
	destroyOp := p.tgt.CallFrameDestroyOp()
	if setupOp == mir.OpcodeInvalid && destroyOp == mir.OpcodeInvalid {
		return
	}

	fi := fn.Frame
	maxSize := int64(0)
	adjusts := fi.AdjustsStack

	var markers []*mir.Instr
	for _, b := range fn.Blocks {
		for i := b.First(); i != nil; i = i.Next() {
			switch {
			case i.Op == setupOp || i.Op == destroyOp:
				if len(i.Operands) < 1 || i.Operands[0].Kind != mir.OpImm {
					panic("stacking: call frame marker without byte count operand")
				}
				if size := i.Operands[0].Imm; size > maxSize {
					maxSize = size
				}
				adjusts = true
				markers = append(markers, i)
			case i.IsInlineAsm() && i.AlignsStack():
				adjusts = true
			}
		}
	}

	fi.AdjustsStack = adjusts
	fi.MaxCallFrameSize = maxSize

	// If call frames end up inside the fixed frame, the markers carry no
	// information for frame index elimination and can go now. Otherwise
	// they stay for the rewriter, which tracks SP adjustments off them.
	for _, m := range markers {
		if p.tgt.CanSimplifyCallFrameMarkers(fn) {
			p.tgt.EliminateCallFrameMarker(fn, m.Block(), m)
		}
	}
}
