package stacking

import (
	"github.com/framefin/framefin/pkg/frame"
	"github.com/framefin/framefin/pkg/mir"
	"github.com/framefin/framefin/pkg/target"
)

// calculateCalleeSaved selects the callee-saved registers that actually
// need saving and gives each one a stack slot. Slots allocated here (the
// non-fixed ones) are contiguous in creation order; the offset allocator
// relies on the recorded [min, max] index range.
func (p *Pass) calculateCalleeSaved(fn *mir.Function) {
	p.minCSFrameIndex = unsetCSIndex
	p.maxCSFrameIndex = 0

	regs := p.tgt.CalleeSavedRegs(fn)
	if len(regs) == 0 {
		return
	}

	// Naked functions save nothing.
	if fn.Naked {
		return
	}

	// A register is saved if the function touches it. Functions invoking
	// the unwind-init primitive save every candidate.
	used := fn.PhysRegsUsed()
	var csi []mir.CalleeSavedInfo
	for _, r := range regs {
		if used[r] || fn.CallsUnwindInit {
			csi = append(csi, mir.CalleeSavedInfo{Reg: r})
		}
	}
	if len(csi) == 0 {
		return
	}

	fixedSlots := p.tgt.FixedSpillSlots()
	for i := range csi {
		r := csi[i].Reg

		// A target-reserved slot wins outright.
		if idx, ok := p.tgt.ReservedSpillSlot(fn, r); ok {
			csi[i].FrameIndex = idx
			continue
		}

		var fixed *target.SpillSlot
		for j := range fixedSlots {
			if fixedSlots[j].Reg == r {
				fixed = &fixedSlots[j]
				break
			}
		}

		rc := p.tgt.RegClass(r)
		if fixed != nil {
			// Pinned to a caller-imposed offset.
			csi[i].FrameIndex = fn.Frame.CreateFixedObject(rc.Size, fixed.Offset, p.tgt.StackAlign())
			continue
		}

		// Floating slot, sized and aligned for the register class. The
		// class may want more alignment than the stack provides.
		align := rc.Align
		if sa := p.tgt.StackAlign(); align > sa {
			align = sa
		}
		idx := fn.Frame.CreateObject(rc.Size, align, frame.KindSpill)
		if idx < p.minCSFrameIndex {
			p.minCSFrameIndex = idx
		}
		if idx > p.maxCSFrameIndex {
			p.maxCSFrameIndex = idx
		}
		csi[i].FrameIndex = idx
	}

	fn.CalleeSaved = csi
}
