// Package mir defines the machine intermediate representation operated on
// after register allocation: functions of basic blocks holding a mutable,
// doubly linked instruction stream. Instruction pointers stay valid across
// insertion and removal, so passes can keep cursors while splicing code.
package mir

// Opcode identifies an instruction. Values are target-defined; OpcodeInvalid
// is reserved to mean "no such opcode".
type Opcode int32

// OpcodeInvalid is returned by targets for opcodes they do not have,
// e.g. the call frame markers on targets without them.
const OpcodeInvalid Opcode = 0

// OperandKind discriminates the Operand union.
type OperandKind uint8

const (
	OpReg OperandKind = iota
	OpImm
	OpFrameIndex
)

// Operand is one instruction operand. Exactly one of Reg, Imm, Index is
// meaningful, per Kind.
type Operand struct {
	Kind  OperandKind
	Reg   Reg
	IsDef bool  // register operands only: definition rather than use
	Imm   int64 // immediate operands
	Index int   // frame index operands: stack object index
}

// RegOp builds a register use operand.
func RegOp(r Reg) Operand { return Operand{Kind: OpReg, Reg: r} }

// DefOp builds a register definition operand.
func DefOp(r Reg) Operand { return Operand{Kind: OpReg, Reg: r, IsDef: true} }

// ImmOp builds an immediate operand.
func ImmOp(v int64) Operand { return Operand{Kind: OpImm, Imm: v} }

// FrameOp builds a frame index operand.
func FrameOp(idx int) Operand { return Operand{Kind: OpFrameIndex, Index: idx} }

// InstrFlags carries the instruction properties the frame pass inspects.
type InstrFlags uint16

const (
	// FlagReturn marks a function return.
	FlagReturn InstrFlags = 1 << iota
	// FlagTerminator marks branches and other control transfers that end
	// a block's straight-line portion.
	FlagTerminator
	// FlagCall marks calls.
	FlagCall
	// FlagInlineAsm marks inline assembly.
	FlagInlineAsm
	// FlagAlignsStack marks inline assembly that requires an aligned
	// stack frame.
	FlagAlignsStack
	// FlagFrameMeta marks debug/metadata instructions whose frame index
	// operand is encoded as an index+offset operand pair instead of a
	// target addressing mode.
	FlagFrameMeta
)

// Instr is a single machine instruction. Instructions are linked into their
// block; Prev/Next navigation stays valid while other instructions are
// inserted or removed around them.
type Instr struct {
	Op       Opcode
	Operands []Operand
	Flags    InstrFlags

	prev, next *Instr
	block      *Block
}

// NewInstr builds an unlinked instruction.
func NewInstr(op Opcode, operands ...Operand) *Instr {
	return &Instr{Op: op, Operands: operands}
}

// WithFlags sets flags and returns the instruction, for fixture building.
func (i *Instr) WithFlags(f InstrFlags) *Instr {
	i.Flags |= f
	return i
}

// Prev returns the previous instruction in the block, or nil at the head.
func (i *Instr) Prev() *Instr { return i.prev }

// Next returns the next instruction in the block, or nil at the tail.
func (i *Instr) Next() *Instr { return i.next }

// Block returns the block currently containing the instruction.
func (i *Instr) Block() *Block { return i.block }

func (i *Instr) IsReturn() bool { return i.Flags&FlagReturn != 0 }
func (i *Instr) IsTerminator() bool { return i.Flags&(FlagTerminator|FlagReturn) != 0 }
func (i *Instr) IsCall() bool { return i.Flags&FlagCall != 0 }
func (i *Instr) IsInlineAsm() bool { return i.Flags&FlagInlineAsm != 0 }
func (i *Instr) AlignsStack() bool { return i.Flags&FlagAlignsStack != 0 }
func (i *Instr) IsFrameMeta() bool { return i.Flags&FlagFrameMeta != 0 }

// HasFrameIndex returns the position of the first frame index operand,
// or -1 if the instruction has none.
func (i *Instr) HasFrameIndex() int {
	for n := range i.Operands {
		if i.Operands[n].Kind == OpFrameIndex {
			return n
		}
	}
	return -1
}
