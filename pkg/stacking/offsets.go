package stacking

import (
	"go.uber.org/zap"

	"github.com/framefin/framefin/pkg/frame"
	"github.com/framefin/framefin/pkg/mir"
	"github.com/framefin/framefin/pkg/target"
)

// alignTo rounds n up to the nearest multiple of align.
func alignTo(n, align int64) int64 {
	if align <= 0 {
		return n
	}
	return (n + align - 1) / align * align
}

// adjustStackOffset places one object at the running offset. The offset is
// a distance in the direction of stack growth; down-growing stacks store
// the negated distance.
func (p *Pass) adjustStackOffset(fi *frame.Info, idx int, growsDown bool, offset *int64, maxAlign *int64) {
	obj := fi.Object(idx)

	// Down growth: the object's address is its low end, so account for
	// the size before aligning.
	if growsDown {
		*offset += obj.Size
	}

	if obj.Align > *maxAlign {
		*maxAlign = obj.Align
	}
	*offset = alignTo(*offset, obj.Align)

	if growsDown {
		p.log.Debug("alloc stack object",
			zap.Int("index", idx), zap.Int64("offset", -*offset))
		fi.SetOffset(idx, -*offset)
	} else {
		p.log.Debug("alloc stack object",
			zap.Int("index", idx), zap.Int64("offset", *offset))
		fi.SetOffset(idx, *offset)
		*offset += obj.Size
	}
}

// calculateFrameObjectOffsets assigns a concrete offset to every stack
// object and publishes the total frame size. Placement order: fixed
// objects seed the running offset, then callee-saved slots, early
// scavenging slots, the local block, the protector and its adjacent large
// arrays, everything else in index order, late scavenging slots, and
// finally frame rounding.
func (p *Pass) calculateFrameObjectOffsets(fn *mir.Function) {
	fi := fn.Frame
	growsDown := p.tgt.StackGrowthDirection() == target.StackGrowsDown

	// The running offset is the distance from the stack top in the
	// direction of growth, so it is always nonnegative.
	localAreaOffset := p.tgt.LocalAreaOffset()
	if growsDown {
		localAreaOffset = -localAreaOffset
	}
	if localAreaOffset < 0 {
		panic("stacking: local area offset against stack growth")
	}
	offset := localAreaOffset

	// Fixed objects preallocated in the local area were placed by the
	// caller's layout and are never moved; non-fixed objects start after
	// the furthest one.
	for i := fi.IndexBegin(); i != 0; i++ {
		obj := fi.Object(i)
		var fixedOff int64
		if growsDown {
			// For down growth the stored offset is negative; its
			// magnitude is the distance of the object's low end.
			fixedOff = -obj.Offset
		} else {
			fixedOff = obj.Offset + obj.Size
		}
		if fixedOff > offset {
			offset = fixedOff
		}
	}

	maxAlign := fi.MaxAlign

	// Callee-saved slots go first, contiguously in index order.
	if p.minCSFrameIndex != unsetCSIndex {
		if growsDown {
			for i := p.minCSFrameIndex; i <= p.maxCSFrameIndex; i++ {
				obj := fi.Object(i)
				offset += obj.Size
				if obj.Align > maxAlign {
					maxAlign = obj.Align
				}
				offset = alignTo(offset, obj.Align)
				fi.SetOffset(i, -offset)
			}
		} else {
			for i := p.minCSFrameIndex; i <= p.maxCSFrameIndex; i++ {
				obj := fi.Object(i)
				if obj.Align > maxAlign {
					maxAlign = obj.Align
				}
				offset = alignTo(offset, obj.Align)
				fi.SetOffset(i, offset)
				offset += obj.Size
			}
		}
	}

	// The scavenging slots sit closest to the incoming stack pointer when
	// the frame pointer is both near it and used as the scavenging base,
	// and the frame is not being realigned. Otherwise they are placed
	// last, closest to the final stack pointer.
	earlyScavengingSlots := p.tgt.HasFramePointer(fn) &&
		p.tgt.FPCloseToIncomingSP() &&
		p.tgt.UseFPForScavengingIndex(fn) &&
		!p.tgt.NeedsStackRealignment(fn)
	if p.rs != nil && earlyScavengingSlots {
		for _, sfi := range p.rs.FrameIndices() {
			p.adjustStackOffset(fi, sfi, growsDown, &offset, &maxAlign)
		}
	}

	// The local block is laid out internally already; align its base and
	// resolve each member from it.
	if fi.UseLocalBlock {
		align := fi.LocalFrameMaxAlign
		offset = alignTo(offset, align)
		p.log.Debug("local block base", zap.Int64("offset", offset))
		for _, e := range fi.LocalBlockEntries {
			var objOff int64
			if growsDown {
				objOff = -offset + e.Offset
			} else {
				objOff = offset + e.Offset
			}
			fi.SetOffset(e.Index, objOff)
		}
		offset += fi.LocalFrameSize
		if align > maxAlign {
			maxAlign = align
		}
	}

	// The protector goes before the locals it guards, with the large
	// arrays packed directly against it.
	protected := make(map[int]bool)
	if fi.ProtectorIndex >= 0 {
		p.adjustStackOffset(fi, fi.ProtectorIndex, growsDown, &offset, &maxAlign)

		var largeArrays []int
		for i := 0; i < fi.IndexEnd(); i++ {
			if p.excludedFromBody(fn, i) {
				continue
			}
			switch p.tgt.ProtectorLayout(fn, i) {
			case target.ProtectorNone, target.ProtectorSmallArray, target.ProtectorAddrOf:
			case target.ProtectorLargeArray:
				largeArrays = append(largeArrays, i)
			default:
				panic("stacking: unexpected protector layout kind")
			}
		}
		for _, i := range largeArrays {
			p.adjustStackOffset(fi, i, growsDown, &offset, &maxAlign)
			protected[i] = true
		}
	}

	// Everything else, ascending index order.
	for i := 0; i < fi.IndexEnd(); i++ {
		if p.excludedFromBody(fn, i) || protected[i] {
			continue
		}
		p.adjustStackOffset(fi, i, growsDown, &offset, &maxAlign)
	}

	// Late scavenging slots end up closest to the stack pointer.
	if p.rs != nil && !earlyScavengingSlots {
		for _, sfi := range p.rs.FrameIndices() {
			p.adjustStackOffset(fi, sfi, growsDown, &offset, &maxAlign)
		}
	}

	if !p.tgt.TargetHandlesStackRounding() {
		// Reserved call frame space counts toward the frame.
		if fi.AdjustsStack && p.tgt.HasReservedCallFrame(fn) {
			offset += fi.MaxCallFrameSize
		}

		// Functions with calls, dynamic objects, or realignment need the
		// full stack alignment; leaf-like functions settle for the
		// transient alignment.
		var stackAlign int64
		if fi.AdjustsStack || fi.HasVarSized ||
			(p.tgt.NeedsStackRealignment(fn) && fi.IndexEnd() != 0) {
			stackAlign = p.tgt.StackAlign()
		} else {
			stackAlign = p.tgt.TransientStackAlign()
		}
		if maxAlign > stackAlign {
			stackAlign = maxAlign
		}
		offset = alignTo(offset, stackAlign)
	}

	stackSize := offset - localAreaOffset
	fi.StackSize = stackSize
	p.stats.StackBytes += stackSize
	p.log.Debug("frame finalized",
		zap.String("function", fn.Name), zap.Int64("stack_size", stackSize))
}

// excludedFromBody reports whether object i is placed by an earlier bucket
// (or never placed at all) and must be skipped by the protector partition
// and the main loop. The kind switch is exhaustive on purpose: a new kind
// must pick its bucket here explicitly.
func (p *Pass) excludedFromBody(fn *mir.Function, i int) bool {
	fi := fn.Frame
	if fi.Object(i).PreAllocated && fi.UseLocalBlock {
		return true
	}
	if p.minCSFrameIndex != unsetCSIndex && i >= p.minCSFrameIndex && i <= p.maxCSFrameIndex {
		return true
	}
	if p.rs != nil && p.rs.IsScavengingFrameIndex(i) {
		return true
	}
	if i == fi.ProtectorIndex {
		return true
	}
	switch fi.Object(i).Kind {
	case frame.KindDead:
		return true
	case frame.KindDefault, frame.KindSpill, frame.KindProtector, frame.KindVariableSized:
		return false
	default:
		panic("stacking: unexpected stack object kind")
	}
}
