package mir

// Reg identifies a machine register. Physical registers are small positive
// values assigned by the target; virtual registers have the high bit set and
// only exist transiently, for scratch values introduced during frame index
// elimination.
type Reg uint32

// NoReg is the zero register value, meaning "no register".
const NoReg Reg = 0

const virtRegFlag Reg = 1 << 31

// IsVirtual returns true for virtual (scratch) registers.
func (r Reg) IsVirtual() bool {
	return r&virtRegFlag != 0
}

// VirtRegIndex returns the dense index of a virtual register.
func (r Reg) VirtRegIndex() int {
	return int(r &^ virtRegFlag)
}

// virtReg builds the n-th virtual register.
func virtReg(n int) Reg {
	return Reg(n) | virtRegFlag
}

// RegClass describes a class of interchangeable physical registers.
// Targets declare one per register file they expose to spilling.
type RegClass struct {
	Name  string
	Size  int64 // spill slot size in bytes
	Align int64 // spill slot alignment in bytes
	Regs  []Reg // allocation order
}

// Contains returns true if r belongs to the class.
func (rc *RegClass) Contains(r Reg) bool {
	for _, c := range rc.Regs {
		if c == r {
			return true
		}
	}
	return false
}

// CalleeSavedInfo records the stack slot assigned to one callee-saved
// register. The planner produces one entry per register actually clobbered,
// in the target's declared order.
type CalleeSavedInfo struct {
	Reg        Reg
	FrameIndex int
}
