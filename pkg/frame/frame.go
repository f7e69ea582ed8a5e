// Package frame holds the per-function stack object table: the abstract
// stack slots created by earlier stages, their sizes and alignments, and the
// concrete offsets assigned during frame finalization.
package frame

// Kind tags what a stack object is. The offset allocator switches over it
// exhaustively when bucketing objects, so every new kind must be placed
// deliberately.
type Kind uint8

const (
	// KindDefault is an ordinary local object.
	KindDefault Kind = iota
	// KindSpill is a register spill slot.
	KindSpill
	// KindProtector is the stack protector guard object.
	KindProtector
	// KindVariableSized is a dynamically sized object; it never receives
	// a static offset.
	KindVariableSized
	// KindDead marks an object no longer referenced. Dead objects keep
	// their index but are skipped by the allocator.
	KindDead
)

// Object is one abstract stack slot.
type Object struct {
	Size  int64
	Align int64
	Kind  Kind

	// PreAllocated marks objects laid out inside the local allocation
	// block; their Offset is resolved from the block base.
	PreAllocated bool

	// Offset is the assigned frame offset; only meaningful once Placed.
	// Down-growing stacks store negative offsets (distance below the
	// frame base), up-growing stacks non-negative ones.
	Offset int64
	Placed bool
}

// LocalBlockEntry maps an object to its offset inside the local block.
type LocalBlockEntry struct {
	Index  int
	Offset int64
}

// Info is the stack object table plus the frame-wide metadata the
// finalization pass computes and consumes.
type Info struct {
	objects []Object // non-fixed, index 0..n-1
	fixed   []Object // fixed, index -1..-m in creation order

	// StackSize is the finalized frame size, published by the offset
	// allocator.
	StackSize int64

	// AdjustsStack and MaxCallFrameSize are computed by the call frame
	// scan: whether the function moves SP for calls, and the largest
	// outgoing call frame in bytes.
	AdjustsStack     bool
	MaxCallFrameSize int64

	// HasVarSized tracks whether any variable-sized object exists.
	HasVarSized bool

	// ProtectorIndex is the stack protector object, or -1.
	ProtectorIndex int

	// MaxAlign is the largest alignment demanded by any object.
	MaxAlign int64

	// Local allocation block: a pre-laid-out group of objects placed as
	// one unit.
	UseLocalBlock      bool
	LocalFrameSize     int64
	LocalFrameMaxAlign int64
	LocalBlockEntries  []LocalBlockEntry

	// CSIValid is set once the callee-saved planner has run.
	CSIValid bool
}

// NewInfo builds an empty table.
func NewInfo() *Info {
	return &Info{ProtectorIndex: -1}
}

// CreateObject appends a non-fixed stack object and returns its index.
func (fi *Info) CreateObject(size, align int64, kind Kind) int {
	if align <= 0 {
		align = 1
	}
	fi.objects = append(fi.objects, Object{Size: size, Align: align, Kind: kind})
	if align > fi.MaxAlign {
		fi.MaxAlign = align
	}
	if kind == KindVariableSized {
		fi.HasVarSized = true
	}
	return len(fi.objects) - 1
}

// CreateFixedObject appends a fixed object at a caller-imposed offset and
// returns its (negative) index. The slot's alignment is what the offset
// guarantees given a stack aligned to stackAlign.
func (fi *Info) CreateFixedObject(size, offset, stackAlign int64) int {
	fi.fixed = append(fi.fixed, Object{
		Size:   size,
		Align:  commonAlign(stackAlign, offset),
		Offset: offset,
		Placed: true,
	})
	return -len(fi.fixed)
}

// commonAlign returns the largest power of two that divides offset, capped
// at align. A zero offset carries the full stack alignment.
func commonAlign(align, offset int64) int64 {
	if align <= 0 {
		align = 1
	}
	if offset < 0 {
		offset = -offset
	}
	if offset == 0 {
		return align
	}
	if low := offset & -offset; low < align {
		return low
	}
	return align
}

// IndexBegin returns the smallest valid object index (most negative fixed
// index), and IndexEnd one past the largest.
func (fi *Info) IndexBegin() int { return -len(fi.fixed) }
func (fi *Info) IndexEnd() int { return len(fi.objects) }

// NumFixed returns the number of fixed objects.
func (fi *Info) NumFixed() int { return len(fi.fixed) }

// IsFixed reports whether idx names a fixed object.
func (fi *Info) IsFixed(idx int) bool { return idx < 0 }

// Object returns the object at idx. Fixed objects use negative indices.
func (fi *Info) Object(idx int) *Object {
	if idx < 0 {
		return &fi.fixed[-idx-1]
	}
	return &fi.objects[idx]
}

// HasStackObjects reports whether any object exists at all.
func (fi *Info) HasStackObjects() bool {
	return len(fi.objects) > 0 || len(fi.fixed) > 0
}

// SetOffset records the concrete offset of an object.
func (fi *Info) SetOffset(idx int, off int64) {
	o := fi.Object(idx)
	o.Offset = off
	o.Placed = true
}

// Offset returns the resolved offset of an object and panics if it has not
// been placed: the rewriter must never observe an unresolved slot.
func (fi *Info) Offset(idx int) int64 {
	o := fi.Object(idx)
	if !o.Placed {
		panic("frame: offset of unplaced stack object")
	}
	return o.Offset
}

// MarkDead retires an object without renumbering.
func (fi *Info) MarkDead(idx int) {
	fi.Object(idx).Kind = KindDead
}

// SetProtectorIndex records the stack protector object.
func (fi *Info) SetProtectorIndex(idx int) { fi.ProtectorIndex = idx }

// MapLocalBlockObject places an object at a pre-resolved offset inside the
// local allocation block.
func (fi *Info) MapLocalBlockObject(idx int, offset int64) {
	fi.LocalBlockEntries = append(fi.LocalBlockEntries, LocalBlockEntry{Index: idx, Offset: offset})
	fi.Object(idx).PreAllocated = true
	if end := offset + fi.Object(idx).Size; end > fi.LocalFrameSize {
		fi.LocalFrameSize = end
	}
	if a := fi.Object(idx).Align; a > fi.LocalFrameMaxAlign {
		fi.LocalFrameMaxAlign = a
	}
	fi.UseLocalBlock = true
}
