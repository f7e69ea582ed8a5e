package stacking

import (
	"fmt"

	"github.com/framefin/framefin/pkg/mir"
)

// scavengeFrameVirtualRegs rewrites the virtual registers that frame index
// resolution materialized into real registers. Scratch virtuals have short
// live ranges inside one block, so a single forward walk per block with
// the oracle tracking liveness is enough.
func (p *Pass) scavengeFrameVirtualRegs(fn *mir.Function) {
	for _, b := range fn.Blocks {
		p.rs.EnterBlock(fn, b)

		for i := b.First(); i != nil; {
			next := i.Next()
			p.rs.Forward(i)

			var mapped bool
			for oi := range i.Operands {
				op := &i.Operands[oi]
				if op.Kind != mir.OpReg || !op.Reg.IsVirtual() {
					continue
				}
				if !op.IsDef {
					panic(fmt.Sprintf("stacking: scratch virtual register %d used before definition in %s",
						op.Reg.VirtRegIndex(), fn.Name))
				}

				// Call frame markers are gone by now, so no stack
				// adjustment is pending here.
				rc := fn.VirtRegClass(op.Reg)
				phys := p.rs.ScavengeRegister(rc, next, 0)
				p.stats.ScavengedRegs++

				fn.ReplaceRegWith(op.Reg, phys)
				p.rs.SetUsed(phys)
				mapped = true
			}

			if mapped && next != nil && i.Next() != next {
				// Scavenging spilled around the use, splitting the
				// def from it. Move the def down next to the use and
				// rescan it so the oracle sees the spill code first.
				prev := i.Prev()
				b.MoveBefore(i, next)
				p.rs.Unprocess(i)
				if prev != nil {
					i = prev.Next()
				} else {
					i = b.First()
				}
				continue
			}
			i = next
		}
	}
}
