// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// Vector identifies which exception or interrupt occurred.
type Vector uintptr

// CPU-defined exception vectors.
const (
	DivideByZero Vector = iota
	Debug
	NMI
	Breakpoint
	Overflow
	BoundRangeExceeded
	InvalidOpcode
	DeviceNotAvailable
	DoubleFault
	CoprocessorSegmentOverrun
	InvalidTSS
	SegmentNotPresent
	StackSegmentFault
	GeneralProtectionFault
	PageFault
	_
	X87FloatingPointException
	AlignmentCheck
	MachineCheck
	SIMDFloatingPointException
	VirtualizationException
)

// External interrupt vectors.
const (
	firstExternalVector Vector = 0x20

	TimerInterrupt    Vector = 0x20
	SyscallInterrupt  Vector = 0x80
	SpuriousInterrupt Vector = 0xff

	numVectors = 0x100
)

// Syscall is the pseudo-vector recorded in frames built by the fast
// syscall entry paths, which bypass the vector table entirely.
const Syscall Vector = numVectors

// vectorClass is the build-time partition of the vector space. It
// decides which stub variant a vector gets and which kernel-mode path
// is reachable from it; nothing recomputes it at runtime.
type vectorClass uint8

const (
	// Synchronous CPU exception, no hardware error code.
	classException vectorClass = iota
	// Synchronous CPU exception with a hardware error code.
	classExceptionErrCode
	// External or software interrupt.
	classInterrupt
)

func classify(v Vector) vectorClass {
	switch {
	case v >= firstExternalVector:
		return classInterrupt
	case hasErrorCode(v):
		return classExceptionErrCode
	default:
		return classException
	}
}

// hasErrorCode reports whether the hardware pushes an error code for
// the vector.
func hasErrorCode(v Vector) bool {
	switch v {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GeneralProtectionFault, PageFault, AlignmentCheck:
		return true
	}
	return false
}

// entryStub is one generated entry point. All 256 stubs share the
// same code below; only the vector number and the error-code variant
// differ, so behavior is identical across the table by construction.
type entryStub struct {
	vector Vector
	class  vectorClass
}

func makeStub(v Vector) entryStub {
	return entryStub{vector: v, class: classify(v)}
}

// installVectors populates the gate table from the stub generator.
func (k *Kernel) installVectors() {
	for v := Vector(0); v < numVectors; v++ {
		level := ring0
		ist := uint8(istNone)
		switch v {
		case Breakpoint, Overflow, SyscallInterrupt:
			// Raisable from user software.
			level = ring3
		case NMI, DoubleFault, MachineCheck:
			// Must run on a known-good stack no matter what
			// the trapped context was doing.
			ist = istGeneric
		}
		k.idt.install(v, level, ist, makeStub(v))
	}
}

// enter is the per-vector stub body: make the error-code slot uniform,
// then demultiplex on the saved code-segment privilege bits.
func (s entryStub) enter(c *CPU) {
	if s.class != classExceptionErrCode {
		// No hardware error code for this vector; synthesize one
		// so the frame layout is uniform.
		c.push(0)
	}
	errCode := *c.stubWord(stubOffErrCode)
	if uint16(*c.stubWord(stubOffCS))&3 != 0 {
		c.userTrapEntry(s.vector, errCode)
		return
	}
	if s.vector < firstExternalVector {
		c.kernelFault(s.vector, errCode)
		return
	}
	c.kernelInterrupt(s.vector, errCode)
}
