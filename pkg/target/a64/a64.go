// Package a64 is the AArch64-flavored reference target for frame
// finalization: down-growing 16-byte-aligned stack, X19-X28 callee-saved,
// call frame markers, and frame index lowering that needs a scratch register
// for offsets outside the immediate range.
package a64

import (
	"fmt"

	"github.com/framefin/framefin/pkg/frame"
	"github.com/framefin/framefin/pkg/mir"
	"github.com/framefin/framefin/pkg/target"
)

// Registers. X29 is the frame pointer, X30 the link register.
const (
	X0 mir.Reg = iota + 1
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	SP
)

const (
	FP = X29
	LR = X30
)

// GPR is the general purpose register class. Allocation order puts the
// caller-saved temporaries first so scavenging prefers them.
var GPR = &mir.RegClass{
	Name:  "gpr",
	Size:  8,
	Align: 8,
	Regs: []mir.Reg{
		X9, X10, X11, X12, X13, X14, X15, X16, X17,
		X0, X1, X2, X3, X4, X5, X6, X7, X8,
		X19, X20, X21, X22, X23, X24, X25, X26, X27, X28,
	},
}

var calleeSaved = []mir.Reg{X19, X20, X21, X22, X23, X24, X25, X26, X27, X28}

// Opcodes.
const (
	ADJCALLSTACKDOWN mir.Opcode = iota + 1
	ADJCALLSTACKUP
	SUBSP
	ADDSP
	STRfi // str rt, [fi, #imm]
	LDRfi // ldr rt, [fi, #imm]
	ADDfi // add rd, fi, #imm  (address materialization)
	STRri // str rt, [rn, #imm]
	LDRri // ldr rt, [rn, #imm]
	ADDri // add rd, rn, #imm
	ADDrr // add rd, rn, rm
	MOVZ  // mov rd, #imm
	MOVrr // mov rd, rn
	RET
	B
	CBZ
	BL
	NOP
	DBGVALUE
)

var opcodeNames = map[mir.Opcode]string{
	ADJCALLSTACKDOWN: "adjcallstackdown",
	ADJCALLSTACKUP:   "adjcallstackup",
	SUBSP:            "subsp",
	ADDSP:            "addsp",
	STRfi:            "strfi",
	LDRfi:            "ldrfi",
	ADDfi:            "addfi",
	STRri:            "str",
	LDRri:            "ldr",
	ADDri:            "add",
	ADDrr:            "addr",
	MOVZ:             "movz",
	MOVrr:            "mov",
	RET:              "ret",
	B:                "b",
	CBZ:              "cbz",
	BL:               "bl",
	NOP:              "nop",
	DBGVALUE:         "dbgvalue",
}

var opcodeByName = func() map[string]mir.Opcode {
	m := make(map[string]mir.Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

// maxImm is the largest offset the load/store immediate forms accept.
const maxImm = 4095

// largeArrayBytes is the protector classification threshold.
const largeArrayBytes = 64

// Target implements target.Target.
type Target struct{}

// New returns the a64 target.
func New() *Target { return &Target{} }

func (t *Target) Name() string { return "a64" }

func (t *Target) StackGrowthDirection() target.StackDirection { return target.StackGrowsDown }
func (t *Target) LocalAreaOffset() int64 { return 0 }
func (t *Target) StackAlign() int64 { return 16 }
func (t *Target) TransientStackAlign() int64 { return 16 }
func (t *Target) TargetHandlesStackRounding() bool { return false }

func (t *Target) HasReservedCallFrame(fn *mir.Function) bool {
	return !fn.Frame.HasVarSized
}

func (t *Target) CanSimplifyCallFrameMarkers(fn *mir.Function) bool {
	return t.HasReservedCallFrame(fn)
}

func (t *Target) HasFramePointer(fn *mir.Function) bool {
	return fn.Frame.HasVarSized || t.NeedsStackRealignment(fn)
}

func (t *Target) FPCloseToIncomingSP() bool { return true }

func (t *Target) UseFPForScavengingIndex(fn *mir.Function) bool { return false }

func (t *Target) NeedsStackRealignment(fn *mir.Function) bool {
	return fn.Frame.MaxAlign > t.StackAlign()
}

func (t *Target) CalleeSavedRegs(fn *mir.Function) []mir.Reg { return calleeSaved }

func (t *Target) RegClass(r mir.Reg) *mir.RegClass { return GPR }

func (t *Target) ReservedSpillSlot(fn *mir.Function, r mir.Reg) (int, bool) { return 0, false }

func (t *Target) FixedSpillSlots() []target.SpillSlot { return nil }

func (t *Target) RequiresRegisterScavenging(fn *mir.Function) bool { return true }
func (t *Target) RequiresFrameIndexScavenging(fn *mir.Function) bool { return true }

func (t *Target) CallFrameSetupOp() mir.Opcode { return ADJCALLSTACKDOWN }
func (t *Target) CallFrameDestroyOp() mir.Opcode { return ADJCALLSTACKUP }

// EliminateCallFrameMarker removes the marker. When call frames are not
// reserved in the fixed frame, the SP adjustment becomes explicit code.
func (t *Target) EliminateCallFrameMarker(fn *mir.Function, b *mir.Block, i *mir.Instr) {
	if !t.HasReservedCallFrame(fn) {
		amount := i.Operands[0].Imm
		if amount != 0 {
			op := SUBSP
			if i.Op == ADJCALLSTACKUP {
				op = ADDSP
			}
			b.InsertBefore(i, mir.NewInstr(op, mir.ImmOp(amount)))
		}
	}
	b.Remove(i)
}

func (t *Target) SpillCalleeSaved(b *mir.Block, pos *mir.Instr, csi []mir.CalleeSavedInfo) bool {
	return false
}

func (t *Target) RestoreCalleeSaved(b *mir.Block, pos *mir.Instr, csi []mir.CalleeSavedInfo) bool {
	return false
}

func (t *Target) StoreRegToStackSlot(b *mir.Block, pos *mir.Instr, r mir.Reg, fi int, rc *mir.RegClass) {
	b.InsertBefore(pos, mir.NewInstr(STRfi, mir.RegOp(r), mir.FrameOp(fi), mir.ImmOp(0)))
}

func (t *Target) LoadRegFromStackSlot(b *mir.Block, pos *mir.Instr, r mir.Reg, fi int, rc *mir.RegClass) {
	b.InsertBefore(pos, mir.NewInstr(LDRfi, mir.DefOp(r), mir.FrameOp(fi), mir.ImmOp(0)))
}

// EmitPrologue allocates the frame at function entry.
func (t *Target) EmitPrologue(fn *mir.Function) {
	size := fn.Frame.StackSize
	if size == 0 {
		return
	}
	entry := fn.Entry()
	entry.InsertBefore(entry.First(), mir.NewInstr(SUBSP, mir.ImmOp(size)))
}

// EmitEpilogue deallocates the frame before the block's return.
func (t *Target) EmitEpilogue(fn *mir.Function, b *mir.Block) {
	size := fn.Frame.StackSize
	if size == 0 {
		return
	}
	pos := b.Last()
	for pos != nil && pos.Prev() != nil && pos.Prev().IsTerminator() {
		pos = pos.Prev()
	}
	b.InsertBefore(pos, mir.NewInstr(ADDSP, mir.ImmOp(size)))
}

func (t *Target) AdjustForSegmentedStacks(fn *mir.Function) {
	// Stack bounds check at entry; the real split-stack call sequence is
	// the linker runtime's problem.
	entry := fn.Entry()
	entry.InsertBefore(entry.First(), mir.NewInstr(NOP))
}

func (t *Target) AdjustForAltPrologue(fn *mir.Function) {
	entry := fn.Entry()
	entry.InsertBefore(entry.First(), mir.NewInstr(NOP))
}

func (t *Target) PrepareForCalleeSavedScan(fn *mir.Function, rs target.Scavenger) {}

// PrepareForFrameFinalize reserves the emergency scavenging slot.
func (t *Target) PrepareForFrameFinalize(fn *mir.Function, rs target.Scavenger) {
	if rs == nil {
		return
	}
	fi := fn.Frame.CreateObject(GPR.Size, GPR.Align, frame.KindSpill)
	rs.AddScavengingFrameIndex(fi)
}

// resolved maps the frame index pseudo forms to their register forms.
var resolved = map[mir.Opcode]mir.Opcode{
	STRfi: STRri,
	LDRfi: LDRri,
	ADDfi: ADDri,
}

// ResolveFrameIndex folds the object's offset into a base+immediate
// addressing mode. Offsets outside the immediate range are materialized into
// a scratch register, scavenged when rs is given and virtual otherwise.
func (t *Target) ResolveFrameIndex(fn *mir.Function, i *mir.Instr, opIdx int, spAdj int64, rs target.Scavenger) int {
	idx := i.Operands[opIdx].Index
	base, off := t.frameReference(fn, idx, spAdj)

	// The operand after the frame index is the instruction's addend.
	total := off
	if opIdx+1 < len(i.Operands) && i.Operands[opIdx+1].Kind == mir.OpImm {
		total += i.Operands[opIdx+1].Imm
	}

	newOp, ok := resolved[i.Op]
	if !ok {
		panic(fmt.Sprintf("a64: opcode %s cannot take a frame index", opcodeNames[i.Op]))
	}
	i.Op = newOp

	if total >= -maxImm && total <= maxImm {
		i.Operands[opIdx] = mir.RegOp(base)
		if opIdx+1 < len(i.Operands) && i.Operands[opIdx+1].Kind == mir.OpImm {
			i.Operands[opIdx+1].Imm = total
		}
		return 0
	}

	// Out of range: scratch = base + total, then a zero-offset access.
	var scratch mir.Reg
	if rs != nil {
		scratch = rs.ScavengeRegister(GPR, i, spAdj)
	} else {
		scratch = fn.CreateVirtualReg(GPR)
	}
	b := i.Block()
	b.InsertBefore(i, mir.NewInstr(MOVZ, mir.DefOp(scratch), mir.ImmOp(total)))
	b.InsertBefore(i, mir.NewInstr(ADDrr, mir.DefOp(scratch), mir.RegOp(scratch), mir.RegOp(base)))
	i.Operands[opIdx] = mir.RegOp(scratch)
	if opIdx+1 < len(i.Operands) && i.Operands[opIdx+1].Kind == mir.OpImm {
		i.Operands[opIdx+1].Imm = 0
	}
	return 2
}

// FrameIndexReference is the metadata-encoding variant: base register plus
// offset, no addressing mode folding and no SP adjustment.
func (t *Target) FrameIndexReference(fn *mir.Function, idx int) (mir.Reg, int64) {
	base, off := t.frameReference(fn, idx, 0)
	return base, off
}

func (t *Target) frameReference(fn *mir.Function, idx int, spAdj int64) (mir.Reg, int64) {
	off := fn.Frame.Offset(idx)
	if t.HasFramePointer(fn) {
		// FP sits at the frame base; object offsets are already
		// FP-relative.
		return FP, off
	}
	// SP-relative: SP is StackSize below the frame base, further moved by
	// any in-flight call frame adjustment.
	return SP, off + fn.Frame.StackSize + spAdj
}

func (t *Target) ProtectorLayout(fn *mir.Function, idx int) target.ProtectorKind {
	o := fn.Frame.Object(idx)
	switch {
	case o.Size >= largeArrayBytes:
		return target.ProtectorLargeArray
	case o.Size >= 8:
		return target.ProtectorSmallArray
	default:
		return target.ProtectorNone
	}
}

func (t *Target) OpcodeName(op mir.Opcode) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op%d", op)
}

func (t *Target) ParseOpcode(name string) (mir.Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

func (t *Target) RegName(r mir.Reg) string {
	switch {
	case r == mir.NoReg:
		return "none"
	case r == SP:
		return "sp"
	case r.IsVirtual():
		return fmt.Sprintf("v%d", r.VirtRegIndex())
	case r >= X0 && r <= X30:
		return fmt.Sprintf("x%d", int(r-X0))
	}
	return fmt.Sprintf("r%d", r)
}

func (t *Target) ParseReg(name string) (mir.Reg, bool) {
	if name == "sp" {
		return SP, true
	}
	var n int
	if _, err := fmt.Sscanf(name, "x%d", &n); err == nil && n >= 0 && n <= 30 {
		return X0 + mir.Reg(n), true
	}
	return mir.NoReg, false
}
