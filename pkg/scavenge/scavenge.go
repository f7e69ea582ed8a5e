// Package scavenge finds free physical registers at arbitrary program
// points. It walks one block at a time, tracking which registers hold live
// values in a sliding window, and falls back to an emergency spill through a
// reserved stack slot when every candidate is occupied.
package scavenge

import (
	"github.com/framefin/framefin/pkg/mir"
	"github.com/framefin/framefin/pkg/target"
)

// Scavenger tracks register liveness forward through a block. Positions are
// instruction pointers; Forward advances one instruction, Unprocess reverts
// one so relocated instructions can be re-evaluated.
type Scavenger struct {
	tgt      target.Target
	reserved map[mir.Reg]bool

	fn    *mir.Function
	block *mir.Block
	cur   *mir.Instr

	live   map[mir.Reg]bool
	killAt map[mir.Reg]*mir.Instr // last use of each reg within the block

	frameIndices []int
}

// New builds a scavenger. Reserved registers are never handed out.
func New(tgt target.Target, reserved ...mir.Reg) *Scavenger {
	rm := make(map[mir.Reg]bool, len(reserved))
	for _, r := range reserved {
		rm[r] = true
	}
	return &Scavenger{tgt: tgt, reserved: rm}
}

// AddScavengingFrameIndex registers an emergency spill slot.
func (s *Scavenger) AddScavengingFrameIndex(fi int) {
	s.frameIndices = append(s.frameIndices, fi)
}

// FrameIndices returns the registered emergency slots.
func (s *Scavenger) FrameIndices() []int { return s.frameIndices }

// IsScavengingFrameIndex reports whether fi is an emergency slot.
func (s *Scavenger) IsScavengingFrameIndex(fi int) bool {
	for _, i := range s.frameIndices {
		if i == fi {
			return true
		}
	}
	return false
}

// EnterBlock resets liveness to the block's entry state.
func (s *Scavenger) EnterBlock(fn *mir.Function, b *mir.Block) {
	s.fn = fn
	s.block = b
	s.cur = nil
	s.live = make(map[mir.Reg]bool)
	for _, r := range b.LiveIns {
		s.live[r] = true
	}
	s.recomputeKills()
}

// recomputeKills rebuilds the per-register last-use positions. Called again
// after emergency code is spliced in, since reloads extend live ranges.
func (s *Scavenger) recomputeKills() {
	s.killAt = make(map[mir.Reg]*mir.Instr)
	for i := s.block.First(); i != nil; i = i.Next() {
		for n := range i.Operands {
			op := &i.Operands[n]
			if op.Kind == mir.OpReg && !op.IsDef && op.Reg != mir.NoReg && !op.Reg.IsVirtual() {
				s.killAt[op.Reg] = i
			}
		}
	}
}

// Forward advances the liveness state across i.
func (s *Scavenger) Forward(i *mir.Instr) {
	for n := range i.Operands {
		op := &i.Operands[n]
		if op.Kind != mir.OpReg || op.Reg == mir.NoReg || op.Reg.IsVirtual() {
			continue
		}
		if !op.IsDef && s.killAt[op.Reg] == i {
			delete(s.live, op.Reg)
		}
	}
	for n := range i.Operands {
		op := &i.Operands[n]
		if op.Kind == mir.OpReg && op.IsDef && !op.Reg.IsVirtual() && op.Reg != mir.NoReg {
			s.live[op.Reg] = true
		}
	}
	s.cur = i
}

// Unprocess reverts the effects of Forward(i) and steps the position back,
// so i can be forwarded again after code is spliced in front of it.
func (s *Scavenger) Unprocess(i *mir.Instr) {
	for n := range i.Operands {
		op := &i.Operands[n]
		if op.Kind != mir.OpReg || op.Reg == mir.NoReg || op.Reg.IsVirtual() {
			continue
		}
		if op.IsDef {
			delete(s.live, op.Reg)
		} else if s.killAt[op.Reg] == i {
			s.live[op.Reg] = true
		}
	}
	s.cur = i.Prev()
}

// CurrentPosition returns the last instruction forwarded over.
func (s *Scavenger) CurrentPosition() *mir.Instr { return s.cur }

// SetUsed marks a register live, recording a scavenged register as occupied.
func (s *Scavenger) SetUsed(r mir.Reg) { s.live[r] = true }

// IsLive reports the tracked liveness of a register at the current point.
func (s *Scavenger) IsLive(r mir.Reg) bool { return s.live[r] }

// ScavengeRegister returns a register of class rc that is free from the
// current position until to. If every candidate is occupied it spills the
// one with the most distant next use to an emergency slot, reloading it
// before that use.
func (s *Scavenger) ScavengeRegister(rc *mir.RegClass, to *mir.Instr, spAdj int64) mir.Reg {
	for _, r := range rc.Regs {
		if s.reserved[r] || s.live[r] {
			continue
		}
		if !s.touchedBefore(r, to) {
			return r
		}
	}

	victim := s.pickVictim(rc, to)
	if victim == mir.NoReg {
		panic("scavenge: no register available to spill")
	}
	if len(s.frameIndices) == 0 {
		panic("scavenge: emergency spill required but no scavenging slot reserved")
	}
	fi := s.frameIndices[0]

	// Spill before to, so the value is parked across the window.
	s.tgt.StoreRegToStackSlot(s.block, to, victim, fi, rc)
	spill := s.block.Last()
	if to != nil {
		spill = to.Prev()
	}
	s.resolveEmergencyAccess(spill, spAdj)

	// Reload right before the victim's next use, or at the block's
	// terminator when it is only live out.
	reloadAt := s.nextUse(victim, to)
	if reloadAt == nil {
		reloadAt = s.terminatorBegin()
	}
	s.tgt.LoadRegFromStackSlot(s.block, reloadAt, victim, fi, rc)
	reload := s.block.Last()
	if reloadAt != nil {
		reload = reloadAt.Prev()
	}
	s.resolveEmergencyAccess(reload, spAdj)

	s.recomputeKills()
	delete(s.live, victim)
	return victim
}

// touchedBefore reports whether r is read or written strictly between the
// current position and to.
func (s *Scavenger) touchedBefore(r mir.Reg, to *mir.Instr) bool {
	start := s.block.First()
	if s.cur != nil {
		start = s.cur.Next()
	}
	for i := start; i != nil && i != to; i = i.Next() {
		for n := range i.Operands {
			op := &i.Operands[n]
			if op.Kind == mir.OpReg && op.Reg == r {
				return true
			}
		}
	}
	return false
}

// pickVictim chooses the live register of rc whose next use is furthest
// away, skipping registers the window itself touches.
func (s *Scavenger) pickVictim(rc *mir.RegClass, to *mir.Instr) mir.Reg {
	best := mir.NoReg
	bestDist := -1
	for _, r := range rc.Regs {
		if s.reserved[r] || s.touchedBefore(r, to) {
			continue
		}
		dist := 0
		use := s.nextUse(r, to)
		if use == nil {
			dist = 1 << 30
		} else {
			for i := to; i != nil && i != use; i = i.Next() {
				dist++
			}
		}
		if dist > bestDist {
			best, bestDist = r, dist
		}
	}
	return best
}

// nextUse finds the first instruction at or after from that reads or
// writes r.
func (s *Scavenger) nextUse(r mir.Reg, from *mir.Instr) *mir.Instr {
	for i := from; i != nil; i = i.Next() {
		for n := range i.Operands {
			op := &i.Operands[n]
			if op.Kind == mir.OpReg && op.Reg == r {
				return i
			}
		}
	}
	return nil
}

// terminatorBegin returns the first terminator of the block, or nil for
// append when the block has none.
func (s *Scavenger) terminatorBegin() *mir.Instr {
	pos := s.block.Last()
	if pos == nil || !pos.IsTerminator() {
		return nil
	}
	for pos.Prev() != nil && pos.Prev().IsTerminator() {
		pos = pos.Prev()
	}
	return pos
}

// resolveEmergencyAccess lowers the frame index of a just-emitted spill or
// reload. The emergency slot sits near the stack pointer, so no scratch
// register is ever needed here.
func (s *Scavenger) resolveEmergencyAccess(i *mir.Instr, spAdj int64) {
	if i == nil {
		return
	}
	if opIdx := i.HasFrameIndex(); opIdx >= 0 {
		s.tgt.ResolveFrameIndex(s.fn, i, opIdx, spAdj, nil)
	}
}
