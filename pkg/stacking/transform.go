// Package stacking finalizes stack frames after register allocation: it
// measures call frames, plans and inserts callee-saved save/restore code,
// assigns concrete offsets to every stack object, emits prologue and
// epilogue code through the target, rewrites abstract frame references into
// real addressing modes, and resolves the scratch registers that rewriting
// introduced.
package stacking

import (
	"math"

	"go.uber.org/zap"

	"github.com/framefin/framefin/pkg/mir"
	"github.com/framefin/framefin/pkg/scavenge"
	"github.com/framefin/framefin/pkg/target"
)

// Config carries the pass options owned by the outer driver.
type Config struct {
	// WarnStackSize triggers a non-fatal diagnostic when a finalized
	// frame exceeds it. Zero disables the check.
	WarnStackSize uint64
	// EnableSegmentedStacks requests the target's segmented-stack
	// prologue adjustment.
	EnableSegmentedStacks bool
}

// Stats accumulates reporting counters across all functions finalized by
// one pass instance.
type Stats struct {
	// ScavengedRegs counts scratch registers resolved by scavenging.
	ScavengedRegs int
	// StackBytes is the total stack bytes used across functions.
	StackBytes int64
}

// unsetCSIndex marks "no callee-saved slots allocated".
const unsetCSIndex = math.MaxInt

// Pass runs frame finalization. One instance serves a whole compilation
// unit; per-function state is reset on every Finalize call.
type Pass struct {
	tgt   target.Target
	cfg   Config
	log   *zap.Logger
	stats *Stats

	rs                          *scavenge.Scavenger
	frameIndexVirtualScavenging bool
	entry                       *mir.Block
	returnBlocks                []*mir.Block
	minCSFrameIndex             int
	maxCSFrameIndex             int
}

// New builds a pass for one target. A nil logger is replaced with a no-op
// logger; a nil stats gets a private accumulator.
func New(tgt target.Target, cfg Config, log *zap.Logger, stats *Stats) *Pass {
	if log == nil {
		log = zap.NewNop()
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Pass{tgt: tgt, cfg: cfg, log: log, stats: stats}
}

// Stats returns the pass's accumulator.
func (p *Pass) Stats() *Stats { return p.stats }

// Finalize runs the whole pipeline on fn. It must run exactly once per
// function; after it returns, no abstract frame references remain. A
// function reaching this pass with leftover virtual registers is a contract
// violation and panics.
func (p *Pass) Finalize(fn *mir.Function) bool {
	if fn.NumVirtRegs() != 0 {
		panic("stacking: virtual registers survive register allocation")
	}

	p.rs = nil
	if p.tgt.RequiresRegisterScavenging(fn) {
		p.rs = scavenge.New(p.tgt)
	}
	p.frameIndexVirtualScavenging = p.tgt.RequiresFrameIndexScavenging(fn)
	p.entry = nil
	p.returnBlocks = nil

	// Measure call frames and drop the markers where the target allows.
	p.calculateCallFrameInfo(fn)

	p.tgt.PrepareForCalleeSavedScan(fn, p.scavengerHook())

	// Decide which callee-saved registers need slots.
	p.calculateCalleeSaved(fn)

	// Cache the entry and return blocks, then place save/restore code.
	p.calculateSets(fn)
	if !fn.Naked {
		p.insertSaveRestore(fn)
	}

	p.tgt.PrepareForFrameFinalize(fn, p.scavengerHook())

	// The central step: concrete offsets for every stack object.
	p.calculateFrameObjectOffsets(fn)

	if !fn.Naked {
		p.insertPrologEpilog(fn)
	}

	// Rewrite abstract slot references into real addressing modes.
	p.replaceFrameIndices(fn)

	// Resolve the scratch virtual registers rewriting introduced.
	if p.rs != nil && p.frameIndexVirtualScavenging {
		p.scavengeFrameVirtualRegs(fn)
	}
	fn.ClearVirtRegs()

	if size := fn.Frame.StackSize; p.cfg.WarnStackSize > 0 && uint64(size) > p.cfg.WarnStackSize {
		p.log.Warn("stack frame size exceeds limit",
			zap.String("function", fn.Name),
			zap.Int64("size", size),
			zap.Uint64("limit", p.cfg.WarnStackSize))
	}

	p.entry = nil
	p.returnBlocks = nil
	return true
}

// scavengerHook exposes the scavenger to target hooks, taking care to hand
// out a genuinely nil interface when scavenging is off.
func (p *Pass) scavengerHook() target.Scavenger {
	if p.rs == nil {
		return nil
	}
	return p.rs
}

// calculateSets caches the entry block and the return blocks for the
// save/restore inserter and the prologue/epilogue emitter.
func (p *Pass) calculateSets(fn *mir.Function) {
	p.entry = fn.Entry()
	for _, b := range fn.Blocks {
		if isReturnBlock(b) {
			p.returnBlocks = append(p.returnBlocks, b)
		}
	}
}

func isReturnBlock(b *mir.Block) bool {
	return b != nil && !b.Empty() && b.Last().IsReturn()
}
