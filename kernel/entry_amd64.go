// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// Trap delivery and the shared entry/return paths.
//
// DeliverTrap models the hardware half of the trap ABI: stack
// selection, the pushed tail, masking further interrupts, and the
// jump through the gate to the per-vector stub. Everything after that
// is the software this package exists to model.

// DeliverTrap delivers vector v to the core. hwErr is consumed only
// for vectors whose class defines a hardware error code.
func (c *CPU) DeliverTrap(v Vector, hwErr uint64) {
	if v >= numVectors {
		fatal("DeliverTrap: vector out of range")
	}
	g := &c.kernel.idt[v]
	oldIP, oldSP, oldFlags := c.regs.IP, c.regs.SP, c.regs.Flags
	oldCS, oldSS := c.cs, c.ss

	// Stack selection: a gate with an IST entry always switches; a
	// privilege crossing loads the per-core kernel stack; otherwise
	// the trap stays on the current kernel stack, skipping the red
	// zone the interrupted code may be using below its own SP.
	switch {
	case g.ist != istNone:
		c.regs.SP = uint64(c.core.tss.ist[g.ist])
	case c.userMode():
		c.regs.SP = uint64(c.core.tss.rsp0)
	default:
		c.regs.SP -= redZoneSize
		c.record(SkipRedZone, v, redZoneSize)
	}

	c.push(uint64(oldSS))
	c.push(oldSP)
	c.push(oldFlags)
	c.push(uint64(oldCS))
	c.push(oldIP)
	if classify(v) == classExceptionErrCode {
		c.push(hwErr)
	}

	// Interrupt gate: the saved image keeps the old IF, the live
	// flags run masked until that image is restored.
	c.regs.Flags &^= _FLAG_IF
	c.cs, c.ss = kcodeSelector, kdataSelector

	g.stub.enter(c)
}

// SoftwareInt models the INT n instruction: delivery is refused with a
// general protection fault when the gate's privilege level does not
// admit the current mode.
func (c *CPU) SoftwareInt(v Vector) {
	if v >= numVectors {
		fatal("SoftwareInt: vector out of range")
	}
	if c.userMode() && c.kernel.idt[v].level != ring3 {
		c.DeliverTrap(GeneralProtectionFault, uint64(v)<<3|2)
		return
	}
	c.DeliverTrap(v, 0)
}

// userTrapEntry is the shared user-mode entry path. The kernel
// address-space root is loaded before anything else; only then is any
// other kernel state touched.
func (c *CPU) userTrapEntry(v Vector, errCode uint64) {
	c.writeCR3(c.kernel.kernelCR3)
	c.swapgs()

	// Save the interrupted context into the running thread's slot,
	// where the fast paths will find it again.
	ctx := c.core.current
	for _, s := range gprSave[:] {
		*ctx.slot(s) = *c.regs.slot(s)
	}
	ctx.Vector = uint64(v)
	ctx.ErrCode = errCode
	ctx.IP = *c.stubWord(stubOffIP)
	ctx.CS = *c.stubWord(stubOffCS)
	ctx.Flags = *c.stubWord(stubOffFlags)
	ctx.SP = *c.stubWord(stubOffSP)
	ctx.SS = *c.stubWord(stubOffSS)
	c.record(SaveContext, v, 0)

	// The frame is consumed; dispatch runs from the stack top. This
	// is now an outermost kernel entry, which the idle sentinel must
	// reflect until the kernel leaves again.
	c.regs.SP = uint64(c.core.tss.rsp0)
	c.core.activity = coreBusy
	c.record(DispatchInterrupt, v, errCode)
	c.hooks.HandleInterrupt(v, errCode)
}

// ReturnToUser resumes the context saved by the last user-mode entry.
// It is the exact inverse of the user entry save sequence and is
// called by the dispatch collaborator on its explicit return path.
// userCR3 is the resuming thread's address-space root.
func (c *CPU) ReturnToUser(userCR3 uint64) {
	ctx := c.core.current
	for i := len(gprSave) - 1; i >= 0; i-- {
		*c.regs.slot(gprSave[i]) = *ctx.slot(gprSave[i])
	}
	c.swapgs()
	c.writeCR3(userCR3)
	c.regs.IP = ctx.IP
	c.regs.Flags = ctx.Flags | _FLAG_RESERVED
	c.regs.SP = ctx.SP
	c.cs, c.ss = ucode64Selector, udataSelector
	c.core.activity = coreIdle
	c.record(Resume, Vector(ctx.Vector), 0)
}

// kernelInterrupt handles an interrupt vector taken while already in
// kernel mode. The idle sentinel distinguishes a first-level interrupt
// that caught the idle loop from a genuine nested one.
func (c *CPU) kernelInterrupt(v Vector, errCode uint64) {
	if c.core.activity != coreIdle {
		c.nestedInterrupt(v)
		return
	}
	c.push(uint64(v))
	c.pushGPRs()
	c.core.activity = coreBusy
	c.record(DispatchInterrupt, v, errCode)
	c.hooks.HandleInterrupt(v, errCode)
	c.core.activity = coreIdle
	c.restoreKernelFrame()
}

// restoreKernelFrame unwinds a completed kernel-mode frame: the exact
// reverse of the save sequence, then the architectural return.
func (c *CPU) restoreKernelFrame() {
	c.popGPRs()
	c.pop() // vector
	c.pop() // error code
	c.iret()
}

// iret executes the architectural return-from-trap: it consumes the
// hardware-pushed tail and resumes the interrupted context, including
// its interrupt-enable state.
func (c *CPU) iret() {
	ip := c.pop()
	cs := c.pop()
	flags := c.pop()
	sp := c.pop()
	ss := c.pop()
	c.regs.IP = ip
	c.regs.Flags = flags
	c.regs.SP = sp
	c.cs, c.ss = uint16(cs), uint16(ss)
	c.record(Resume, 0, flags)
}
