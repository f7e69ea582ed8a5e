package mir

import (
	"fmt"

	"go.uber.org/multierr"
)

// Verify checks the structural invariants of a function and returns every
// violation found, combined. A nil result means the function is well
// formed.
func Verify(fn *Function) error {
	var err error

	if len(fn.Blocks) == 0 {
		return fmt.Errorf("%s: function has no blocks", fn.Name)
	}

	blocks := make(map[*Block]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		blocks[b] = true
	}

	for _, b := range fn.Blocks {
		for _, s := range b.Succs {
			if !blocks[s] {
				err = multierr.Append(err, fmt.Errorf(
					"%s: bb%d lists a successor outside the function", fn.Name, b.ID))
			}
		}

		seenBody := false
		for i := b.Last(); i != nil; i = i.Prev() {
			if i.Block() != b {
				err = multierr.Append(err, fmt.Errorf(
					"%s: bb%d holds an instruction linked to another block", fn.Name, b.ID))
			}
			if i.IsTerminator() {
				if seenBody {
					err = multierr.Append(err, fmt.Errorf(
						"%s: bb%d has a terminator before a non-terminator", fn.Name, b.ID))
				}
			} else {
				seenBody = true
			}
			err = multierr.Append(err, verifyOperands(fn, b, i))
		}
	}

	return err
}

func verifyOperands(fn *Function, b *Block, i *Instr) error {
	var err error
	for _, op := range i.Operands {
		switch op.Kind {
		case OpReg:
			if op.Reg == NoReg {
				err = multierr.Append(err, fmt.Errorf(
					"%s: bb%d uses the null register", fn.Name, b.ID))
			}
			if op.Reg.IsVirtual() && op.Reg.VirtRegIndex() >= fn.NumVirtRegs() {
				err = multierr.Append(err, fmt.Errorf(
					"%s: bb%d references unregistered virtual register v%d",
					fn.Name, b.ID, op.Reg.VirtRegIndex()))
			}
		case OpFrameIndex:
			if fn.Frame == nil {
				err = multierr.Append(err, fmt.Errorf(
					"%s: bb%d references a frame index without frame info", fn.Name, b.ID))
				continue
			}
			if op.Index < fn.Frame.IndexBegin() || op.Index >= fn.Frame.IndexEnd() {
				err = multierr.Append(err, fmt.Errorf(
					"%s: bb%d references frame index %d outside [%d, %d)",
					fn.Name, b.ID, op.Index, fn.Frame.IndexBegin(), fn.Frame.IndexEnd()))
			}
		}
	}
	return err
}
