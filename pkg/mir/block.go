package mir

// Block is a basic block: a doubly linked instruction list plus successor
// edges. The entry block is Blocks[0] of its function.
type Block struct {
	ID      int
	Succs   []*Block
	LiveIns []Reg

	first, last *Instr
	fn          *Function
}

// Function returns the owning function.
func (b *Block) Function() *Function { return b.fn }

// First returns the first instruction, or nil for an empty block.
func (b *Block) First() *Instr { return b.first }

// Last returns the last instruction, or nil for an empty block.
func (b *Block) Last() *Instr { return b.last }

// Empty reports whether the block has no instructions.
func (b *Block) Empty() bool { return b.first == nil }

// Len counts the block's instructions.
func (b *Block) Len() int {
	n := 0
	for i := b.first; i != nil; i = i.next {
		n++
	}
	return n
}

// Append links i at the end of the block.
func (b *Block) Append(i *Instr) *Instr {
	return b.InsertBefore(nil, i)
}

// InsertBefore links i immediately before pos. A nil pos appends.
func (b *Block) InsertBefore(pos, i *Instr) *Instr {
	if i.block != nil {
		panic("mir: instruction already linked")
	}
	i.block = b
	if pos == nil {
		i.prev = b.last
		i.next = nil
		if b.last != nil {
			b.last.next = i
		} else {
			b.first = i
		}
		b.last = i
		return i
	}
	if pos.block != b {
		panic("mir: insert position belongs to another block")
	}
	i.prev = pos.prev
	i.next = pos
	if pos.prev != nil {
		pos.prev.next = i
	} else {
		b.first = i
	}
	pos.prev = i
	return i
}

// InsertAfter links i immediately after pos. A nil pos prepends.
func (b *Block) InsertAfter(pos, i *Instr) *Instr {
	if pos == nil {
		return b.InsertBefore(b.first, i)
	}
	return b.InsertBefore(pos.next, i)
}

// Remove unlinks i from the block. The instruction keeps its operand data
// and may be relinked.
func (b *Block) Remove(i *Instr) {
	if i.block != b {
		panic("mir: removing instruction from wrong block")
	}
	if i.prev != nil {
		i.prev.next = i.next
	} else {
		b.first = i.next
	}
	if i.next != nil {
		i.next.prev = i.prev
	} else {
		b.last = i.prev
	}
	i.prev, i.next, i.block = nil, nil, nil
}

// MoveBefore relocates i (already in the block) to immediately precede pos.
func (b *Block) MoveBefore(i, pos *Instr) {
	b.Remove(i)
	b.InsertBefore(pos, i)
}

// AddLiveIn records a register live on entry to the block, once.
func (b *Block) AddLiveIn(r Reg) {
	for _, l := range b.LiveIns {
		if l == r {
			return
		}
	}
	b.LiveIns = append(b.LiveIns, r)
}

// AddSucc records a successor edge, once.
func (b *Block) AddSucc(s *Block) {
	for _, e := range b.Succs {
		if e == s {
			return
		}
	}
	b.Succs = append(b.Succs, s)
}
