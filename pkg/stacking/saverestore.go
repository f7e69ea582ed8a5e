package stacking

import "github.com/framefin/framefin/pkg/mir"

// insertSaveRestore places callee-saved spill code at the entry block head
// and restore code before every return. The target's bulk hooks get first
// refusal; declining falls back to generic per-register stores and loads.
func (p *Pass) insertSaveRestore(fn *mir.Function) {
	csi := fn.CalleeSaved
	fn.Frame.CSIValid = true
	if len(csi) == 0 {
		return
	}

	pos := p.entry.First()
	if !p.tgt.SpillCalleeSaved(p.entry, pos, csi) {
		for _, cs := range csi {
			// The incoming value is live from function entry until
			// the spill kills it.
			p.entry.AddLiveIn(cs.Reg)
			rc := p.tgt.RegClass(cs.Reg)
			p.tgt.StoreRegToStackSlot(p.entry, pos, cs.Reg, cs.FrameIndex, rc)
		}
	}

	for _, b := range p.returnBlocks {
		// Restores go immediately before the return and any terminators
		// that precede it.
		pos := b.Last()
		for pos.Prev() != nil && pos.Prev().IsTerminator() {
			pos = pos.Prev()
		}

		atStart := pos == b.First()
		var beforePos *mir.Instr
		if !atStart {
			beforePos = pos.Prev()
		}

		if p.tgt.RestoreCalleeSaved(b, pos, csi) {
			continue
		}
		for _, cs := range csi {
			rc := p.tgt.RegClass(cs.Reg)
			p.tgt.LoadRegFromStackSlot(b, pos, cs.Reg, cs.FrameIndex, rc)
			// A single load may expand to several instructions, so the
			// insert point is re-derived rather than assumed stable.
			if atStart {
				pos = b.First()
			} else {
				pos = beforePos.Next()
			}
		}
	}
}
