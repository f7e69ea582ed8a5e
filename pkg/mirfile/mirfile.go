// Package mirfile loads machine-level test programs from YAML. The format
// is what the fixture files under testdata use: a list of functions, each
// with its stack objects, blocks, and instructions, with operands written
// in the target's symbolic names.
package mirfile

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/framefin/framefin/pkg/frame"
	"github.com/framefin/framefin/pkg/mir"
	"github.com/framefin/framefin/pkg/target"
)

// File represents the top-level YAML document
type File struct {
	Functions []FunctionSpec `yaml:"functions"`
}

// FunctionSpec describes one function
type FunctionSpec struct {
	Name            string       `yaml:"name"`
	Naked           bool         `yaml:"naked,omitempty"`
	CallsUnwindInit bool         `yaml:"calls_unwind_init,omitempty"`
	CallConv        string       `yaml:"call_conv,omitempty"`
	Objects         []ObjectSpec `yaml:"objects,omitempty"`
	FixedObjects    []FixedSpec  `yaml:"fixed_objects,omitempty"`
	Blocks          []BlockSpec  `yaml:"blocks"`
}

// ObjectSpec describes a stack object created before the pass runs
type ObjectSpec struct {
	Size  int64  `yaml:"size"`
	Align int64  `yaml:"align"`
	Kind  string `yaml:"kind,omitempty"`
}

// FixedSpec describes a caller-placed fixed object
type FixedSpec struct {
	Size   int64 `yaml:"size"`
	Offset int64 `yaml:"offset"`
}

// BlockSpec describes a basic block
type BlockSpec struct {
	Succs   []int       `yaml:"succs,omitempty"`
	LiveIns []string    `yaml:"live_ins,omitempty"`
	Instrs  []InstrSpec `yaml:"instrs"`
}

// InstrSpec describes one instruction. Operands use the target's register
// names, "#n" for immediates, "fiN" for frame indexes, and a "!" prefix to
// mark a register definition.
type InstrSpec struct {
	Op    string   `yaml:"op"`
	Args  []string `yaml:"args,omitempty"`
	Flags []string `yaml:"flags,omitempty"`
}

// Decode parses a YAML document into a program for the given target.
func Decode(data []byte, tgt target.Target) (*mir.Program, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("mirfile: %w", err)
	}

	prog := &mir.Program{}
	for _, fs := range f.Functions {
		fn, err := decodeFunction(fs, tgt)
		if err != nil {
			return nil, err
		}
		prog.Functions = append(prog.Functions, fn)
	}
	return prog, nil
}

func decodeFunction(fs FunctionSpec, tgt target.Target) (*mir.Function, error) {
	fn := mir.NewFunction(fs.Name)
	fn.Naked = fs.Naked
	fn.CallsUnwindInit = fs.CallsUnwindInit

	switch fs.CallConv {
	case "", "default":
		fn.CallConv = mir.CallConvDefault
	case "altstack":
		fn.CallConv = mir.CallConvAltStack
	default:
		return nil, fmt.Errorf("mirfile: %s: unknown calling convention %q", fs.Name, fs.CallConv)
	}

	for n, os := range fs.Objects {
		kind, err := objectKind(os.Kind)
		if err != nil {
			return nil, fmt.Errorf("mirfile: %s: object %d: %w", fs.Name, n, err)
		}
		fn.Frame.CreateObject(os.Size, os.Align, kind)
	}
	for _, os := range fs.FixedObjects {
		fn.Frame.CreateFixedObject(os.Size, os.Offset, tgt.StackAlign())
	}

	blocks := make([]*mir.Block, len(fs.Blocks))
	for n := range fs.Blocks {
		blocks[n] = fn.NewBlock()
	}
	for n, bs := range fs.Blocks {
		b := blocks[n]
		for _, s := range bs.Succs {
			if s < 0 || s >= len(blocks) {
				return nil, fmt.Errorf("mirfile: %s: block %d: successor %d out of range", fs.Name, n, s)
			}
			b.AddSucc(blocks[s])
		}
		for _, name := range bs.LiveIns {
			r, ok := tgt.ParseReg(name)
			if !ok {
				return nil, fmt.Errorf("mirfile: %s: block %d: unknown register %q", fs.Name, n, name)
			}
			b.AddLiveIn(r)
		}
		for k, is := range bs.Instrs {
			instr, err := decodeInstr(is, tgt)
			if err != nil {
				return nil, fmt.Errorf("mirfile: %s: block %d: instr %d: %w", fs.Name, n, k, err)
			}
			b.Append(instr)
		}
	}
	return fn, nil
}

func decodeInstr(is InstrSpec, tgt target.Target) (*mir.Instr, error) {
	op, ok := tgt.ParseOpcode(is.Op)
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", is.Op)
	}

	var flags mir.InstrFlags
	for _, f := range is.Flags {
		switch f {
		case "return":
			flags |= mir.FlagReturn
		case "terminator":
			flags |= mir.FlagTerminator
		case "call":
			flags |= mir.FlagCall
		case "inline_asm":
			flags |= mir.FlagInlineAsm
		case "aligns_stack":
			flags |= mir.FlagAlignsStack
		case "frame_meta":
			flags |= mir.FlagFrameMeta
		default:
			return nil, fmt.Errorf("unknown flag %q", f)
		}
	}

	var ops []mir.Operand
	for _, a := range is.Args {
		o, err := decodeOperand(a, tgt)
		if err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}
	return mir.NewInstr(op, ops...).WithFlags(flags), nil
}

func decodeOperand(s string, tgt target.Target) (mir.Operand, error) {
	switch {
	case strings.HasPrefix(s, "#"):
		v, err := strconv.ParseInt(s[1:], 10, 64)
		if err != nil {
			return mir.Operand{}, fmt.Errorf("bad immediate %q", s)
		}
		return mir.ImmOp(v), nil
	case strings.HasPrefix(s, "fi"):
		v, err := strconv.Atoi(s[2:])
		if err != nil {
			return mir.Operand{}, fmt.Errorf("bad frame index %q", s)
		}
		return mir.FrameOp(v), nil
	case strings.HasPrefix(s, "!"):
		r, ok := tgt.ParseReg(s[1:])
		if !ok {
			return mir.Operand{}, fmt.Errorf("unknown register %q", s[1:])
		}
		return mir.DefOp(r), nil
	default:
		r, ok := tgt.ParseReg(s)
		if !ok {
			return mir.Operand{}, fmt.Errorf("unknown register %q", s)
		}
		return mir.RegOp(r), nil
	}
}

func objectKind(s string) (frame.Kind, error) {
	switch s {
	case "", "default":
		return frame.KindDefault, nil
	case "spill":
		return frame.KindSpill, nil
	case "protector":
		return frame.KindProtector, nil
	case "variable":
		return frame.KindVariableSized, nil
	case "dead":
		return frame.KindDead, nil
	default:
		return 0, fmt.Errorf("unknown object kind %q", s)
	}
}
