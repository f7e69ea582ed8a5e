package mir

import (
	"fmt"
	"io"
)

// Namer supplies symbolic names when dumping machine code. Targets
// implement it; the printer falls back to numeric forms without one.
type Namer interface {
	OpcodeName(op Opcode) string
	RegName(r Reg) string
}

// Printer dumps functions in a readable listing format
type Printer struct {
	w     io.Writer
	names Namer
}

// NewPrinter creates a new listing printer
func NewPrinter(w io.Writer, names Namer) *Printer {
	return &Printer{w: w, names: names}
}

// PrintProgram outputs every function in the program
func (p *Printer) PrintProgram(prog *Program) {
	for _, fn := range prog.Functions {
		p.PrintFunction(fn)
	}
}

// PrintFunction outputs one function with its frame summary
func (p *Printer) PrintFunction(fn *Function) {
	fmt.Fprintf(p.w, "function %s:\n", fn.Name)
	if fn.Frame != nil && fn.Frame.StackSize != 0 {
		fmt.Fprintf(p.w, "  ; stack %d bytes\n", fn.Frame.StackSize)
	}
	for _, b := range fn.Blocks {
		p.printBlock(b)
	}
	fmt.Fprintf(p.w, "\n")
}

func (p *Printer) printBlock(b *Block) {
	fmt.Fprintf(p.w, "bb%d:", b.ID)
	if len(b.Succs) > 0 {
		fmt.Fprintf(p.w, " ; succs")
		for _, s := range b.Succs {
			fmt.Fprintf(p.w, " bb%d", s.ID)
		}
	}
	if len(b.LiveIns) > 0 {
		fmt.Fprintf(p.w, " ; live-in")
		for _, r := range b.LiveIns {
			fmt.Fprintf(p.w, " %s", p.regName(r))
		}
	}
	fmt.Fprintf(p.w, "\n")
	for i := b.First(); i != nil; i = i.Next() {
		p.printInstr(i)
	}
}

func (p *Printer) printInstr(i *Instr) {
	fmt.Fprintf(p.w, "\t%s", p.opName(i.Op))
	for n, op := range i.Operands {
		if n == 0 {
			fmt.Fprintf(p.w, "\t")
		} else {
			fmt.Fprintf(p.w, ", ")
		}
		p.printOperand(op)
	}
	fmt.Fprintf(p.w, "\n")
}

func (p *Printer) printOperand(op Operand) {
	switch op.Kind {
	case OpReg:
		if op.IsDef {
			fmt.Fprintf(p.w, "%s!", p.regName(op.Reg))
		} else {
			fmt.Fprintf(p.w, "%s", p.regName(op.Reg))
		}
	case OpImm:
		fmt.Fprintf(p.w, "#%d", op.Imm)
	case OpFrameIndex:
		fmt.Fprintf(p.w, "fi%d", op.Index)
	default:
		fmt.Fprintf(p.w, "?")
	}
}

func (p *Printer) regName(r Reg) string {
	if r.IsVirtual() {
		return fmt.Sprintf("v%d", r.VirtRegIndex())
	}
	if p.names != nil {
		return p.names.RegName(r)
	}
	return fmt.Sprintf("r%d", uint32(r))
}

func (p *Printer) opName(op Opcode) string {
	if p.names != nil {
		return p.names.OpcodeName(op)
	}
	return fmt.Sprintf("op%d", int32(op))
}
