package mir

import "github.com/framefin/framefin/pkg/frame"

// CallConv selects the calling convention variant of a function. The frame
// pass only distinguishes conventions that need an alternate prologue.
type CallConv uint8

const (
	CallConvDefault CallConv = iota
	// CallConvAltStack asks the target for its alternate stack-check
	// prologue (runtime-managed stacks).
	CallConvAltStack
)

// Function is a machine function after register allocation.
type Function struct {
	Name   string
	Blocks []*Block
	Frame  *frame.Info

	// Naked functions get no prologue, epilogue, or callee-saved code.
	Naked bool
	// CallsUnwindInit forces every callee-saved candidate to be saved.
	CallsUnwindInit bool
	CallConv        CallConv

	// CalleeSaved is filled in by the frame pass planner.
	CalleeSaved []CalleeSavedInfo

	vregClasses []*RegClass
}

// NewFunction builds an empty function with a fresh frame info.
func NewFunction(name string) *Function {
	return &Function{Name: name, Frame: frame.NewInfo()}
}

// NewBlock appends a new empty block and returns it.
func (f *Function) NewBlock() *Block {
	b := &Block{ID: len(f.Blocks), fn: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Entry returns the entry block.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		panic("mir: function has no blocks")
	}
	return f.Blocks[0]
}

// CreateVirtualReg allocates a scratch virtual register of the given class.
func (f *Function) CreateVirtualReg(rc *RegClass) Reg {
	f.vregClasses = append(f.vregClasses, rc)
	return virtReg(len(f.vregClasses) - 1)
}

// VirtRegClass returns the class a virtual register was created with.
func (f *Function) VirtRegClass(r Reg) *RegClass {
	if !r.IsVirtual() {
		panic("mir: not a virtual register")
	}
	return f.vregClasses[r.VirtRegIndex()]
}

// NumVirtRegs returns the number of live virtual registers.
func (f *Function) NumVirtRegs() int { return len(f.vregClasses) }

// ClearVirtRegs drops the virtual register pool once all references have
// been rewritten to physical registers.
func (f *Function) ClearVirtRegs() { f.vregClasses = nil }

// ReplaceRegWith rewrites every operand naming from to name to.
func (f *Function) ReplaceRegWith(from, to Reg) {
	for _, b := range f.Blocks {
		for i := b.First(); i != nil; i = i.Next() {
			for n := range i.Operands {
				if i.Operands[n].Kind == OpReg && i.Operands[n].Reg == from {
					i.Operands[n].Reg = to
				}
			}
		}
	}
}

// PhysRegsUsed scans the function and returns the set of physical registers
// referenced by any operand.
func (f *Function) PhysRegsUsed() map[Reg]bool {
	used := make(map[Reg]bool)
	for _, b := range f.Blocks {
		for i := b.First(); i != nil; i = i.Next() {
			for n := range i.Operands {
				op := &i.Operands[n]
				if op.Kind == OpReg && op.Reg != NoReg && !op.Reg.IsVirtual() {
					used[op.Reg] = true
				}
			}
		}
	}
	return used
}

// Program is a set of functions finalized together.
type Program struct {
	Functions []*Function
}
