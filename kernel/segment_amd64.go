// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// Segment selectors and descriptor-table models. Segmenting is largely
// vestigial in 64-bit mode, but the privilege bits of the code segment
// selector still drive the user-vs-kernel demux, and the TSS still
// selects stacks on privilege crossings.

type privLevel uint16

const (
	ring0 privLevel = 0
	ring3 privLevel = 3
)

// Segment indices. SYSCALL/SYSRET force the relative positions of the
// kernel and user selectors.
const (
	// Mandatory null selector.
	_ = iota
	// Ring 0 code (64-bit).
	segmentCode0
	// Ring 0 data.
	segmentData0
	// Ring 3 code (32-bit).
	segment32Code3
	// Ring 3 data.
	segmentData3
	// Ring 3 code (64-bit).
	segment64Code3
)

// Selectors, index shifted past the RPL bits.
const (
	kcodeSelector   = uint16(segmentCode0<<3) | uint16(ring0)
	kdataSelector   = uint16(segmentData0<<3) | uint16(ring0)
	ucode64Selector = uint16(segment64Code3<<3) | uint16(ring3)
	udataSelector   = uint16(segmentData3<<3) | uint16(ring3)
)

// Interrupt stack table indices.
const (
	istNone = iota
	// istGeneric backs the handful of vectors that must run on the
	// dedicated interrupt stack even when taken in kernel mode.
	istGeneric
)

// tss models the task state: the stack loaded on a privilege-crossing
// trap and the interrupt stack table.
type tss struct {
	rsp0 virtualAddress
	ist  [8]virtualAddress
}

func (t *tss) setRSP(idx int, sp virtualAddress) {
	if idx != 0 {
		fatal("setRSP: only RSP0 is modelled")
	}
	t.rsp0 = sp
}

func (t *tss) setIST(idx int, sp virtualAddress) {
	if idx < 1 || idx > 7 {
		fatal("setIST: stack index out of range")
	}
	t.ist[idx] = sp
}

// There are 256 interrupt gates.
type idt [numVectors]gate

// gate is an interrupt gate: the entry stub the hardware jumps
// through, the privilege level allowed to raise the vector from
// software, and the interrupt-stack-table selection.
type gate struct {
	stub  entryStub
	level privLevel
	ist   uint8
}

// install an interrupt gate.
func (t *idt) install(v Vector, level privLevel, ist uint8, stub entryStub) {
	t[v] = gate{stub: stub, level: level, ist: ist}
}
