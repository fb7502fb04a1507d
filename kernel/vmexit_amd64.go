// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// VM-exit handling: the extra guest state save/restore around the
// vmexit dispatch call, for register sets the normal trap frame never
// covers. Present only when virtualization support is configured.

// The segment-base MSRs saved and reloaded around a guest exit when
// the extended guest register set is enabled: an extra segment base,
// its shadow, and the other segment base. Guest execution may have
// left any of them pointing at guest-owned memory.
var guestSegmentMSRs = [...]uint32{
	_MSR_FS_BASE,
	_IA32_KERNEL_GS_BASE,
	_IA32_GS_BASE,
}

// guestSaveBase is the guest GPR save order for a 32-bit guest
// register set.
var guestSaveBase = [...]frameSlot{
	slotAX, slotBX, slotCX, slotDX, slotSI, slotDI, slotBP,
}

// guestSaveExtended widens the order for a 64-bit guest register set.
var guestSaveExtended = [...]frameSlot{
	slotAX, slotBX, slotCX, slotDX, slotSI, slotDI, slotBP,
	slotR8, slotR9, slotR10, slotR11, slotR12, slotR13, slotR14, slotR15,
}

// GuestState is a guest's register file and the guest-state stack
// area its exit frames are built on.
type GuestState struct {
	// Regs is the guest register file at exit time.
	Regs Regs

	area kstack
	sp   virtualAddress
}

// Guest-state areas live in their own address window.
const guestStateBase virtualAddress = 0xffffff9000000000

// NewGuestState allocates a guest-state area. Only configured
// virtualization support may have guests.
func (c *CPU) NewGuestState() *GuestState {
	if !c.kernel.conf.Virtualization {
		fatal("NewGuestState: virtualization not configured")
	}
	g := &GuestState{
		area: newStack(guestStateBase + virtualAddress(c.core.id)*coreStackStride),
	}
	g.sp = g.area.top()
	return g
}

func (g *GuestState) push(v uint64) {
	g.sp -= 8
	*g.area.word(g.sp) = v
}

func (g *GuestState) pop() uint64 {
	v := *g.area.word(g.sp)
	g.sp += 8
	return v
}

func (c *CPU) guestSaveOrder() []frameSlot {
	if c.kernel.conf.ExtendedGuestState {
		return guestSaveExtended[:]
	}
	return guestSaveBase[:]
}

// VMExit handles a guest exit: save the guest register file onto the
// guest-state area, reload the host segment-base MSRs, switch to the
// per-core kernel stack and hand control to vmexit dispatch. The
// collaborator decides whether to resume the guest, inject an event
// or exit to the host scheduler; this layer never resumes the guest
// itself.
func (c *CPU) VMExit(g *GuestState) {
	if !c.kernel.conf.Virtualization {
		fatal("VMExit: virtualization not configured")
	}
	for _, s := range c.guestSaveOrder() {
		g.push(*g.Regs.slot(s))
	}
	if c.kernel.conf.ExtendedGuestState {
		for _, m := range guestSegmentMSRs[:] {
			lo, hi := c.rdmsr0(m)
			g.push(uint64(hi)<<32 | uint64(lo))
		}
		// The guest's bases must not leak into host kernel code
		// running next; reload the host values from fixed storage.
		c.wrmsr(_MSR_FS_BASE, c.core.hostFSBase)
		c.wrmsr(_IA32_KERNEL_GS_BASE, c.core.hostShadowGSBase)
		c.wrmsr(_IA32_GS_BASE, c.core.hostGSBase)
		c.record(RestoreHostMSRs, 0, c.core.hostFSBase)
	}

	c.regs.SP = uint64(c.core.tss.rsp0)
	c.record(DispatchVMExit, 0, 0)
	c.hooks.HandleVMExit()
}

// VMEntryRestore is the exact inverse of the VMExit save: it reloads
// the guest segment-base MSRs and register file from the guest-state
// area. The vmexit collaborator calls it when it decides to resume
// the guest.
func (c *CPU) VMEntryRestore(g *GuestState) {
	if !c.kernel.conf.Virtualization {
		fatal("VMEntryRestore: virtualization not configured")
	}
	if c.kernel.conf.ExtendedGuestState {
		for i := len(guestSegmentMSRs) - 1; i >= 0; i-- {
			v := g.pop()
			c.wrmsr0(guestSegmentMSRs[i], uint32(v), uint32(v>>32))
		}
	}
	order := c.guestSaveOrder()
	for i := len(order) - 1; i >= 0; i-- {
		*g.Regs.slot(order[i]) = g.pop()
	}
}
