// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import "testing"

// With the extended guest register set, a VM exit saves the guest
// segment-base MSRs as 32-bit halves, reloads the host values before
// dispatch, and VMEntryRestore puts the guest values back bit for
// bit.
func TestVMExitExtendedRoundTrip(t *testing.T) {
	c, h := newTestCPU(t, Config{Virtualization: true, ExtendedGuestState: true})
	g := c.NewGuestState()

	fillRegs(&g.Regs)
	guestRegs := g.Regs
	c.wrmsr0(_MSR_FS_BASE, 0x11112222, 0x3333)
	c.wrmsr0(_IA32_GS_BASE, 0x44445555, 0x6666)
	c.wrmsr0(_IA32_KERNEL_GS_BASE, 0x77778888, 0x9999)

	c.VMExit(g)

	if h.vmexits != 1 {
		t.Fatalf("vmexits = %d, want 1", h.vmexits)
	}
	if got := c.rdmsr(_MSR_FS_BASE); got != c.core.hostFSBase {
		t.Fatalf("FS base after exit = %#x, want host value %#x", got, c.core.hostFSBase)
	}
	if got := c.rdmsr(_IA32_GS_BASE); got != c.core.hostGSBase {
		t.Fatalf("GS base after exit = %#x, want host value %#x", got, c.core.hostGSBase)
	}
	if got := c.rdmsr(_IA32_KERNEL_GS_BASE); got != c.core.hostShadowGSBase {
		t.Fatalf("shadow GS base after exit = %#x, want host value %#x",
			got, c.core.hostShadowGSBase)
	}
	if c.regs.SP != uint64(c.core.tss.rsp0) {
		t.Fatalf("dispatch SP = %#x, want the kernel stack", c.regs.SP)
	}
	events := c.Events()
	ri, di := eventIndex(events, RestoreHostMSRs), eventIndex(events, DispatchVMExit)
	if ri < 0 || di < 0 || ri > di {
		t.Fatalf("host MSRs not restored before dispatch: %v", events)
	}

	g.Regs = Regs{}
	c.VMEntryRestore(g)

	if g.Regs != guestRegs {
		t.Fatalf("guest register file not restored:\nwant:\n%s\ngot:\n%s",
			guestRegs.Dump(), g.Regs.Dump())
	}
	if lo, hi := c.rdmsr0(_MSR_FS_BASE); lo != 0x11112222 || hi != 0x3333 {
		t.Fatalf("guest FS base halves = %#x/%#x", lo, hi)
	}
	if got := c.rdmsr(_IA32_KERNEL_GS_BASE); got != 0x999977778888 {
		t.Fatalf("guest shadow GS base = %#x", got)
	}
}

// The base guest register set saves only the 32-bit-era registers and
// leaves the MSRs alone.
func TestVMExitBaseSet(t *testing.T) {
	c, _ := newTestCPU(t, Config{Virtualization: true})
	g := c.NewGuestState()

	fillRegs(&g.Regs)
	guestRegs := g.Regs
	hostFS := c.rdmsr(_MSR_FS_BASE)

	c.VMExit(g)

	if want := g.area.top() - virtualAddress(len(guestSaveBase))*8; g.sp != want {
		t.Fatalf("save area SP = %#x, want %#x", g.sp, want)
	}
	if got := c.rdmsr(_MSR_FS_BASE); got != hostFS {
		t.Fatalf("FS base touched on a base-set exit: %#x", got)
	}

	g.Regs.AX, g.Regs.BX = 0, 0
	c.VMEntryRestore(g)
	if g.Regs != guestRegs {
		t.Fatal("base register set not restored")
	}
	if g.sp != g.area.top() {
		t.Fatalf("save area not unwound: %#x", g.sp)
	}
}

// Guest state exists only when virtualization is configured.
func TestGuestStateRequiresVirtualization(t *testing.T) {
	c, _ := newTestCPU(t, Config{})
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic without virtualization support")
		}
	}()
	c.NewGuestState()
}
