// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import "testing"

var errCodeVectors = map[Vector]bool{
	DoubleFault:            true,
	InvalidTSS:             true,
	SegmentNotPresent:      true,
	StackSegmentFault:      true,
	GeneralProtectionFault: true,
	PageFault:              true,
	AlignmentCheck:         true,
}

func TestVectorClassification(t *testing.T) {
	for v := Vector(0); v < numVectors; v++ {
		got := classify(v)
		var want vectorClass
		switch {
		case v >= firstExternalVector:
			want = classInterrupt
		case errCodeVectors[v]:
			want = classExceptionErrCode
		default:
			want = classException
		}
		if got != want {
			t.Fatalf("vector %#x: class = %d, want %d", uintptr(v), got, want)
		}
	}
}

// Every vector either carries the hardware error code through or
// synthesizes zero; the frame always has a well-defined error-code
// field.
func TestStubErrorCode(t *testing.T) {
	const hwErr = 0x2
	c, _ := newTestCPU(t, Config{})
	userSP := c.AddUserStack(0x7f0000000000)
	for v := Vector(0); v < numVectors; v++ {
		c.EnterUser(0x400000, userSP)
		c.DeliverTrap(v, hwErr)
		ctx := c.CurrentContext()
		if ctx.Vector != uint64(v) {
			t.Fatalf("vector %#x: frame vector = %#x", uintptr(v), ctx.Vector)
		}
		want := uint64(0)
		if hasErrorCode(v) {
			want = hwErr
		}
		if ctx.ErrCode != want {
			t.Fatalf("vector %#x: frame error code = %#x, want %#x",
				uintptr(v), ctx.ErrCode, want)
		}
	}
}

func TestSoftwareIntPrivilege(t *testing.T) {
	c, h := newTestCPU(t, Config{})
	userSP := c.AddUserStack(0x7f0000000000)

	// A user INT on a kernel-only gate is refused with a general
	// protection fault carrying the selector-style error code.
	c.EnterUser(0x400000, userSP)
	c.SoftwareInt(TimerInterrupt)
	if len(h.interrupts) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(h.interrupts))
	}
	want := trapRecord{GeneralProtectionFault, uint64(TimerInterrupt)<<3 | 2}
	if h.interrupts[0] != want {
		t.Fatalf("dispatch = %+v, want %+v", h.interrupts[0], want)
	}

	// The syscall software vector admits user callers.
	h.interrupts = nil
	c.EnterUser(0x400000, userSP)
	c.SoftwareInt(SyscallInterrupt)
	if len(h.interrupts) != 1 || h.interrupts[0].vector != SyscallInterrupt {
		t.Fatalf("dispatch = %+v, want vector %#x", h.interrupts, uintptr(SyscallInterrupt))
	}
}

// Vectors with an IST gate run on the dedicated interrupt stack even
// when taken in kernel mode; everything else stays on the current
// stack.
func TestGateStackSelection(t *testing.T) {
	c, h := newTestCPU(t, Config{})
	interruptStack := &c.core.interruptStack

	var liveSP uint64
	h.onFault = func(KernelFaultInfo) {
		liveSP = c.regs.SP
	}

	spBefore := c.regs.SP
	c.DeliverTrap(NMI, 0)
	if len(h.faults) != 1 {
		t.Fatalf("NMI faults = %d, want 1", len(h.faults))
	}
	if !interruptStack.contains(virtualAddress(liveSP)) {
		t.Fatalf("NMI frame at %#x, not on the interrupt stack", liveSP)
	}
	// The saved SP still names the interrupted stack.
	if h.faults[0].SP != spBefore {
		t.Fatalf("saved SP = %#x, want %#x", h.faults[0].SP, spBefore)
	}
	if c.regs.SP != spBefore {
		t.Fatalf("SP after resume = %#x, want %#x", c.regs.SP, spBefore)
	}

	// Non-IST exceptions stay on the current stack.
	c.DeliverTrap(InvalidOpcode, 0)
	if len(h.faults) != 2 {
		t.Fatalf("faults = %d, want 2", len(h.faults))
	}
	if !c.core.kernelStack.contains(virtualAddress(liveSP)) {
		t.Fatalf("exception frame at %#x, not on the kernel stack", liveSP)
	}
}
