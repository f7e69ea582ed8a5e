package mir

import "testing"

const (
	opNop Opcode = iota + 1
	opAdd
	opRet
)

func opsOf(b *Block) []Opcode {
	var ops []Opcode
	for i := b.First(); i != nil; i = i.Next() {
		ops = append(ops, i.Op)
	}
	return ops
}

func sameOps(a, b []Opcode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBlockAppend(t *testing.T) {
	fn := NewFunction("f")
	b := fn.NewBlock()

	b.Append(NewInstr(opNop))
	b.Append(NewInstr(opAdd))
	b.Append(NewInstr(opRet))

	if got := opsOf(b); !sameOps(got, []Opcode{opNop, opAdd, opRet}) {
		t.Errorf("ops = %v, want [nop add ret]", got)
	}
	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}
	if b.First().Op != opNop || b.Last().Op != opRet {
		t.Error("First/Last corrupted after Append")
	}
}

func TestBlockInsertBefore(t *testing.T) {
	fn := NewFunction("f")
	b := fn.NewBlock()
	ret := NewInstr(opRet)
	b.Append(ret)

	b.InsertBefore(ret, NewInstr(opNop))
	b.InsertBefore(ret, NewInstr(opAdd))

	if got := opsOf(b); !sameOps(got, []Opcode{opNop, opAdd, opRet}) {
		t.Errorf("ops = %v, want [nop add ret]", got)
	}

	// A nil position appends.
	b.InsertBefore(nil, NewInstr(opNop))
	if b.Last().Op != opNop {
		t.Error("InsertBefore(nil) did not append")
	}
}

func TestBlockInsertAfter(t *testing.T) {
	fn := NewFunction("f")
	b := fn.NewBlock()
	first := NewInstr(opNop)
	b.Append(first)
	b.Append(NewInstr(opRet))

	b.InsertAfter(first, NewInstr(opAdd))

	if got := opsOf(b); !sameOps(got, []Opcode{opNop, opAdd, opRet}) {
		t.Errorf("ops = %v, want [nop add ret]", got)
	}
}

func TestBlockRemove(t *testing.T) {
	fn := NewFunction("f")
	b := fn.NewBlock()
	mid := NewInstr(opAdd)
	b.Append(NewInstr(opNop))
	b.Append(mid)
	b.Append(NewInstr(opRet))

	b.Remove(mid)

	if got := opsOf(b); !sameOps(got, []Opcode{opNop, opRet}) {
		t.Errorf("ops = %v, want [nop ret]", got)
	}
	if mid.Block() != nil {
		t.Error("removed instruction still linked to a block")
	}
}

func TestBlockMoveBefore(t *testing.T) {
	fn := NewFunction("f")
	b := fn.NewBlock()
	a := NewInstr(opNop)
	c := NewInstr(opAdd)
	ret := NewInstr(opRet)
	b.Append(a)
	b.Append(c)
	b.Append(ret)

	// Cursors stay valid across a move.
	b.MoveBefore(a, ret)

	if got := opsOf(b); !sameOps(got, []Opcode{opAdd, opNop, opRet}) {
		t.Errorf("ops = %v, want [add nop ret]", got)
	}
	if a.Next() != ret || a.Prev() != c {
		t.Error("moved instruction has wrong neighbors")
	}
}

func TestBlockLiveInDedup(t *testing.T) {
	fn := NewFunction("f")
	b := fn.NewBlock()
	b.AddLiveIn(Reg(5))
	b.AddLiveIn(Reg(5))
	b.AddLiveIn(Reg(7))
	if len(b.LiveIns) != 2 {
		t.Errorf("LiveIns = %v, want two entries", b.LiveIns)
	}
}

func TestInstrFlags(t *testing.T) {
	ret := NewInstr(opRet).WithFlags(FlagReturn)
	if !ret.IsReturn() {
		t.Error("IsReturn() = false for a return")
	}
	if !ret.IsTerminator() {
		t.Error("a return must count as a terminator")
	}

	br := NewInstr(opAdd).WithFlags(FlagTerminator)
	if br.IsReturn() {
		t.Error("IsReturn() = true for a plain terminator")
	}
}

func TestHasFrameIndex(t *testing.T) {
	i := NewInstr(opAdd, DefOp(Reg(1)), FrameOp(2), ImmOp(0))
	if got := i.HasFrameIndex(); got != 1 {
		t.Errorf("HasFrameIndex() = %d, want 1", got)
	}
	j := NewInstr(opAdd, DefOp(Reg(1)), RegOp(Reg(2)))
	if got := j.HasFrameIndex(); got != -1 {
		t.Errorf("HasFrameIndex() = %d, want -1", got)
	}
}

func TestVirtualRegs(t *testing.T) {
	fn := NewFunction("f")
	rc := &RegClass{Name: "gpr", Size: 8, Align: 8, Regs: []Reg{1, 2, 3}}

	v0 := fn.CreateVirtualReg(rc)
	v1 := fn.CreateVirtualReg(rc)
	if !v0.IsVirtual() || !v1.IsVirtual() {
		t.Fatal("created registers are not virtual")
	}
	if v0 == v1 {
		t.Error("virtual registers not distinct")
	}
	if fn.NumVirtRegs() != 2 {
		t.Errorf("NumVirtRegs() = %d, want 2", fn.NumVirtRegs())
	}
	if fn.VirtRegClass(v1) != rc {
		t.Error("VirtRegClass lost the class")
	}

	b := fn.NewBlock()
	b.Append(NewInstr(opAdd, DefOp(v0), ImmOp(4)))
	fn.ReplaceRegWith(v0, Reg(2))
	if op := b.First().Operands[0]; op.Reg != Reg(2) || !op.IsDef {
		t.Errorf("ReplaceRegWith left operand %+v", op)
	}

	fn.ClearVirtRegs()
	if fn.NumVirtRegs() != 0 {
		t.Error("ClearVirtRegs left registers behind")
	}
}

func TestPhysRegsUsed(t *testing.T) {
	fn := NewFunction("f")
	b := fn.NewBlock()
	b.Append(NewInstr(opAdd, DefOp(Reg(3)), RegOp(Reg(4))))
	b.Append(NewInstr(opRet).WithFlags(FlagReturn))

	used := fn.PhysRegsUsed()
	if !used[Reg(3)] || !used[Reg(4)] {
		t.Errorf("PhysRegsUsed() = %v, want 3 and 4", used)
	}
	if used[Reg(5)] {
		t.Error("PhysRegsUsed() reports an untouched register")
	}
}
