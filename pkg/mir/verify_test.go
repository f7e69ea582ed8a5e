package mir

import (
	"strings"
	"testing"
)

func TestVerifyWellFormed(t *testing.T) {
	fn := NewFunction("ok")
	b := fn.NewBlock()
	b.Append(NewInstr(opAdd, DefOp(Reg(1)), RegOp(Reg(2))))
	b.Append(NewInstr(opRet).WithFlags(FlagReturn))

	if err := Verify(fn); err != nil {
		t.Errorf("Verify = %v, want nil", err)
	}
}

func TestVerifyNoBlocks(t *testing.T) {
	if err := Verify(NewFunction("empty")); err == nil {
		t.Error("Verify accepted a function without blocks")
	}
}

func TestVerifyTerminatorPlacement(t *testing.T) {
	fn := NewFunction("f")
	b := fn.NewBlock()
	b.Append(NewInstr(opNop).WithFlags(FlagTerminator))
	b.Append(NewInstr(opAdd, DefOp(Reg(1)), ImmOp(2)))

	err := Verify(fn)
	if err == nil || !strings.Contains(err.Error(), "terminator") {
		t.Errorf("Verify = %v, want terminator placement error", err)
	}
}

func TestVerifyFrameIndexBounds(t *testing.T) {
	fn := NewFunction("f")
	fn.Frame.CreateObject(8, 8, 0)
	b := fn.NewBlock()
	b.Append(NewInstr(opAdd, DefOp(Reg(1)), FrameOp(5)))
	b.Append(NewInstr(opRet).WithFlags(FlagReturn))

	err := Verify(fn)
	if err == nil || !strings.Contains(err.Error(), "frame index") {
		t.Errorf("Verify = %v, want frame index bounds error", err)
	}
}

func TestVerifyCollectsMultiple(t *testing.T) {
	fn := NewFunction("f")
	b := fn.NewBlock()
	b.Append(NewInstr(opAdd, RegOp(NoReg), FrameOp(9)))
	b.Append(NewInstr(opRet).WithFlags(FlagReturn))

	err := Verify(fn)
	if err == nil {
		t.Fatal("Verify = nil, want two violations")
	}
	if !strings.Contains(err.Error(), "null register") || !strings.Contains(err.Error(), "frame index") {
		t.Errorf("Verify = %v, want both violations reported", err)
	}
}
