package stacking

import (
	"fmt"

	"github.com/framefin/framefin/pkg/frame"
	"github.com/framefin/framefin/pkg/mir"
	"github.com/framefin/framefin/pkg/target"
)

// Test registers. tSP is the stack pointer of the fake machine.
const (
	tR1 mir.Reg = iota + 1
	tR2
	tR3
	tR4
	tSP
)

var tGPR = &mir.RegClass{
	Name:  "tgpr",
	Size:  8,
	Align: 8,
	Regs:  []mir.Reg{tR1, tR2, tR3, tR4},
}

// Test opcodes.
const (
	tNop mir.Opcode = iota + 1
	tSetup
	tDestroy
	tSpAdj  // lowered marker
	tStore  // store r, fi, #imm
	tLoad   // load r!, fi, #imm
	tStoreR // resolved: store r, base, #imm
	tLoadR
	tMov // mov r!, #imm (scratch materialization)
	tProlog
	tEpilog
	tRet
	tBr
	tUse // reads/writes its register operands, no frame access
	tMeta
)

var tOpNames = map[mir.Opcode]string{
	tNop: "nop", tSetup: "setup", tDestroy: "destroy", tSpAdj: "spadj",
	tStore: "store", tLoad: "load", tStoreR: "store.r", tLoadR: "load.r",
	tMov: "mov", tProlog: "prolog", tEpilog: "epilog", tRet: "ret",
	tBr: "br", tUse: "use", tMeta: "meta",
}

// testTarget is a knob-covered fake machine. The zero value is a
// down-growing 16-byte-aligned stack with no frame pointer, no register
// scavenging, and no call frame elimination.
type testTarget struct {
	growsUp         bool
	stackAlign      int64
	transientAlign  int64
	localArea       int64
	handlesRounding bool

	csRegs        []mir.Reg
	reservedSlots map[mir.Reg]int
	fixedSlots    []target.SpillSlot
	bulkSpill     bool

	hasFP       bool
	fpClose     bool
	useFPScav   bool
	reservedCF  bool
	simplifyCF  bool
	regScav     bool
	fiScav      bool
	noMarkers   bool
	immLimit    int64 // 0 means unlimited
	largeArrays map[int]bool

	prologues   int
	epilogues   int
	segmented   int
	altProlog   int
	observedAdj []int64
	bulkSpills  int
	bulkLoads   int
}

func newTestTarget() *testTarget {
	return &testTarget{
		stackAlign:     16,
		transientAlign: 8,
		csRegs:         []mir.Reg{tR1, tR2, tR3},
	}
}

func (t *testTarget) Name() string { return "test" }

func (t *testTarget) StackGrowthDirection() target.StackDirection {
	if t.growsUp {
		return target.StackGrowsUp
	}
	return target.StackGrowsDown
}

func (t *testTarget) LocalAreaOffset() int64 {
	if t.growsUp {
		return t.localArea
	}
	return -t.localArea
}

func (t *testTarget) StackAlign() int64 { return t.stackAlign }
func (t *testTarget) TransientStackAlign() int64 { return t.transientAlign }
func (t *testTarget) TargetHandlesStackRounding() bool { return t.handlesRounding }

func (t *testTarget) HasReservedCallFrame(fn *mir.Function) bool { return t.reservedCF }
func (t *testTarget) CanSimplifyCallFrameMarkers(fn *mir.Function) bool { return t.simplifyCF }
func (t *testTarget) HasFramePointer(fn *mir.Function) bool { return t.hasFP }
func (t *testTarget) FPCloseToIncomingSP() bool { return t.fpClose }
func (t *testTarget) UseFPForScavengingIndex(fn *mir.Function) bool { return t.useFPScav }
func (t *testTarget) NeedsStackRealignment(fn *mir.Function) bool { return false }

func (t *testTarget) CalleeSavedRegs(fn *mir.Function) []mir.Reg { return t.csRegs }
func (t *testTarget) RegClass(r mir.Reg) *mir.RegClass { return tGPR }

func (t *testTarget) ReservedSpillSlot(fn *mir.Function, r mir.Reg) (int, bool) {
	idx, ok := t.reservedSlots[r]
	return idx, ok
}

func (t *testTarget) FixedSpillSlots() []target.SpillSlot { return t.fixedSlots }

func (t *testTarget) RequiresRegisterScavenging(fn *mir.Function) bool { return t.regScav }
func (t *testTarget) RequiresFrameIndexScavenging(fn *mir.Function) bool { return t.fiScav }

func (t *testTarget) CallFrameSetupOp() mir.Opcode {
	if t.noMarkers {
		return mir.OpcodeInvalid
	}
	return tSetup
}

func (t *testTarget) CallFrameDestroyOp() mir.Opcode {
	if t.noMarkers {
		return mir.OpcodeInvalid
	}
	return tDestroy
}

func (t *testTarget) EliminateCallFrameMarker(fn *mir.Function, b *mir.Block, i *mir.Instr) {
	if !t.reservedCF {
		if amount := i.Operands[0].Imm; amount != 0 {
			b.InsertBefore(i, mir.NewInstr(tSpAdj, mir.ImmOp(amount)))
		}
	}
	b.Remove(i)
}

func (t *testTarget) SpillCalleeSaved(b *mir.Block, pos *mir.Instr, csi []mir.CalleeSavedInfo) bool {
	if !t.bulkSpill {
		return false
	}
	t.bulkSpills++
	for _, cs := range csi {
		b.InsertBefore(pos, mir.NewInstr(tStore, mir.RegOp(cs.Reg), mir.FrameOp(cs.FrameIndex), mir.ImmOp(0)))
	}
	return true
}

func (t *testTarget) RestoreCalleeSaved(b *mir.Block, pos *mir.Instr, csi []mir.CalleeSavedInfo) bool {
	if !t.bulkSpill {
		return false
	}
	t.bulkLoads++
	for _, cs := range csi {
		b.InsertBefore(pos, mir.NewInstr(tLoad, mir.DefOp(cs.Reg), mir.FrameOp(cs.FrameIndex), mir.ImmOp(0)))
	}
	return true
}

func (t *testTarget) StoreRegToStackSlot(b *mir.Block, pos *mir.Instr, r mir.Reg, fi int, rc *mir.RegClass) {
	b.InsertBefore(pos, mir.NewInstr(tStore, mir.RegOp(r), mir.FrameOp(fi), mir.ImmOp(0)))
}

func (t *testTarget) LoadRegFromStackSlot(b *mir.Block, pos *mir.Instr, r mir.Reg, fi int, rc *mir.RegClass) {
	b.InsertBefore(pos, mir.NewInstr(tLoad, mir.DefOp(r), mir.FrameOp(fi), mir.ImmOp(0)))
}

func (t *testTarget) EmitPrologue(fn *mir.Function) {
	t.prologues++
	if fn.Frame.StackSize == 0 {
		return
	}
	entry := fn.Entry()
	entry.InsertBefore(entry.First(), mir.NewInstr(tProlog, mir.ImmOp(fn.Frame.StackSize)))
}

func (t *testTarget) EmitEpilogue(fn *mir.Function, b *mir.Block) {
	t.epilogues++
	if fn.Frame.StackSize == 0 {
		return
	}
	pos := b.Last()
	for pos != nil && pos.Prev() != nil && pos.Prev().IsTerminator() {
		pos = pos.Prev()
	}
	b.InsertBefore(pos, mir.NewInstr(tEpilog, mir.ImmOp(fn.Frame.StackSize)))
}

func (t *testTarget) AdjustForSegmentedStacks(fn *mir.Function) { t.segmented++ }
func (t *testTarget) AdjustForAltPrologue(fn *mir.Function)     { t.altProlog++ }

func (t *testTarget) PrepareForCalleeSavedScan(fn *mir.Function, rs target.Scavenger) {}

func (t *testTarget) PrepareForFrameFinalize(fn *mir.Function, rs target.Scavenger) {
	if rs == nil {
		return
	}
	fi := fn.Frame.CreateObject(tGPR.Size, tGPR.Align, frame.KindSpill)
	rs.AddScavengingFrameIndex(fi)
}

var tResolved = map[mir.Opcode]mir.Opcode{
	tStore: tStoreR,
	tLoad:  tLoadR,
}

func (t *testTarget) ResolveFrameIndex(fn *mir.Function, i *mir.Instr, opIdx int, spAdj int64, rs target.Scavenger) int {
	t.observedAdj = append(t.observedAdj, spAdj)

	idx := i.Operands[opIdx].Index
	base, off := t.FrameIndexReference(fn, idx)
	total := off + spAdj
	if opIdx+1 < len(i.Operands) && i.Operands[opIdx+1].Kind == mir.OpImm {
		total += i.Operands[opIdx+1].Imm
	}

	newOp, ok := tResolved[i.Op]
	if !ok {
		panic(fmt.Sprintf("test target: opcode %s cannot take a frame index", tOpNames[i.Op]))
	}
	i.Op = newOp

	if t.immLimit == 0 || (total >= -t.immLimit && total <= t.immLimit) {
		i.Operands[opIdx] = mir.RegOp(base)
		if opIdx+1 < len(i.Operands) && i.Operands[opIdx+1].Kind == mir.OpImm {
			i.Operands[opIdx+1].Imm = total
		}
		return 0
	}

	var scratch mir.Reg
	if rs != nil {
		scratch = rs.ScavengeRegister(tGPR, i, spAdj)
	} else {
		scratch = fn.CreateVirtualReg(tGPR)
	}
	i.Block().InsertBefore(i, mir.NewInstr(tMov, mir.DefOp(scratch), mir.ImmOp(total)))
	i.Operands[opIdx] = mir.RegOp(scratch)
	if opIdx+1 < len(i.Operands) && i.Operands[opIdx+1].Kind == mir.OpImm {
		i.Operands[opIdx+1].Imm = 0
	}
	return 1
}

func (t *testTarget) FrameIndexReference(fn *mir.Function, idx int) (mir.Reg, int64) {
	off := fn.Frame.Offset(idx)
	if t.growsUp {
		return tSP, off
	}
	return tSP, off + fn.Frame.StackSize
}

func (t *testTarget) ProtectorLayout(fn *mir.Function, idx int) target.ProtectorKind {
	if t.largeArrays[idx] {
		return target.ProtectorLargeArray
	}
	return target.ProtectorNone
}

func (t *testTarget) OpcodeName(op mir.Opcode) string {
	if name, ok := tOpNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op%d", op)
}

func (t *testTarget) ParseOpcode(name string) (mir.Opcode, bool) {
	for op, n := range tOpNames {
		if n == name {
			return op, true
		}
	}
	return mir.OpcodeInvalid, false
}

func (t *testTarget) RegName(r mir.Reg) string {
	if r == tSP {
		return "sp"
	}
	return fmt.Sprintf("r%d", r)
}

func (t *testTarget) ParseReg(name string) (mir.Reg, bool) {
	if name == "sp" {
		return tSP, true
	}
	var n int
	if _, err := fmt.Sscanf(name, "r%d", &n); err == nil && n >= 1 && n <= 4 {
		return mir.Reg(n), true
	}
	return mir.NoReg, false
}
