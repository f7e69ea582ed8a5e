// Package target declares the capability interface the frame finalization
// pass consumes. One implementation exists per supported architecture and is
// selected once per compilation unit.
package target

import "github.com/framefin/framefin/pkg/mir"

// StackDirection is the direction the stack grows in.
type StackDirection int

const (
	StackGrowsDown StackDirection = iota
	StackGrowsUp
)

// ProtectorKind classifies a stack object for stack protector layout.
type ProtectorKind int

const (
	// ProtectorNone: the object does not need protector adjacency.
	ProtectorNone ProtectorKind = iota
	// ProtectorSmallArray: array below the protector threshold.
	ProtectorSmallArray
	// ProtectorAddrOf: object whose address escapes.
	ProtectorAddrOf
	// ProtectorLargeArray: oversized buffer that must sit next to the
	// protector slot.
	ProtectorLargeArray
)

// SpillSlot pins a callee-saved register to a caller-imposed frame offset.
type SpillSlot struct {
	Reg    mir.Reg
	Offset int64
}

// Scavenger is the narrow view of the register scavenger that frame index
// resolution may use to materialize large offsets.
type Scavenger interface {
	// ScavengeRegister returns a register of class rc free until to,
	// spilling one if necessary.
	ScavengeRegister(rc *mir.RegClass, to *mir.Instr, spAdj int64) mir.Reg
	// AddScavengingFrameIndex registers an emergency spill slot created
	// for the scavenger by the target's frame finalize hook.
	AddScavengingFrameIndex(fi int)
}

// Target is the full set of queries and code emission hooks the pass needs.
// Query methods never mutate the function; Emit/Eliminate/Resolve hooks
// splice target instructions into the stream.
type Target interface {
	Name() string

	// Frame lowering queries.
	StackGrowthDirection() StackDirection
	LocalAreaOffset() int64
	StackAlign() int64
	TransientStackAlign() int64
	TargetHandlesStackRounding() bool
	HasReservedCallFrame(fn *mir.Function) bool
	CanSimplifyCallFrameMarkers(fn *mir.Function) bool
	HasFramePointer(fn *mir.Function) bool
	FPCloseToIncomingSP() bool
	UseFPForScavengingIndex(fn *mir.Function) bool
	NeedsStackRealignment(fn *mir.Function) bool

	// Register information.
	CalleeSavedRegs(fn *mir.Function) []mir.Reg
	RegClass(r mir.Reg) *mir.RegClass
	ReservedSpillSlot(fn *mir.Function, r mir.Reg) (int, bool)
	FixedSpillSlots() []SpillSlot
	RequiresRegisterScavenging(fn *mir.Function) bool
	RequiresFrameIndexScavenging(fn *mir.Function) bool

	// Call frame markers. Targets without them return OpcodeInvalid.
	CallFrameSetupOp() mir.Opcode
	CallFrameDestroyOp() mir.Opcode
	// EliminateCallFrameMarker removes or replaces the marker i. Any
	// replacement code is inserted in place of the marker.
	EliminateCallFrameMarker(fn *mir.Function, b *mir.Block, i *mir.Instr)

	// Callee-saved save/restore. The bulk hooks return true when they
	// handled the whole list; false falls back to per-register code.
	SpillCalleeSaved(b *mir.Block, pos *mir.Instr, csi []mir.CalleeSavedInfo) bool
	RestoreCalleeSaved(b *mir.Block, pos *mir.Instr, csi []mir.CalleeSavedInfo) bool
	StoreRegToStackSlot(b *mir.Block, pos *mir.Instr, r mir.Reg, fi int, rc *mir.RegClass)
	LoadRegFromStackSlot(b *mir.Block, pos *mir.Instr, r mir.Reg, fi int, rc *mir.RegClass)

	// Prologue and epilogue.
	EmitPrologue(fn *mir.Function)
	EmitEpilogue(fn *mir.Function, b *mir.Block)
	AdjustForSegmentedStacks(fn *mir.Function)
	AdjustForAltPrologue(fn *mir.Function)

	// Pipeline hooks before the callee-saved scan and before offsets are
	// finalized.
	PrepareForCalleeSavedScan(fn *mir.Function, rs Scavenger)
	PrepareForFrameFinalize(fn *mir.Function, rs Scavenger)

	// ResolveFrameIndex rewrites the frame index operand opIdx of i into
	// a concrete addressing mode, possibly inserting instructions before
	// i, and returns how many it inserted. rs may be nil when scratch
	// registers are resolved by the post-pass instead.
	ResolveFrameIndex(fn *mir.Function, i *mir.Instr, opIdx int, spAdj int64, rs Scavenger) int

	// FrameIndexReference returns the base register and offset for a
	// frame index, for the metadata index+offset operand encoding.
	FrameIndexReference(fn *mir.Function, idx int) (mir.Reg, int64)

	// ProtectorLayout classifies an object for protector placement.
	ProtectorLayout(fn *mir.Function, idx int) ProtectorKind

	// Naming, for the printer and the text format.
	OpcodeName(op mir.Opcode) string
	ParseOpcode(name string) (mir.Opcode, bool)
	RegName(r mir.Reg) string
	ParseReg(name string) (mir.Reg, bool)
}
