// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// KernelFaultInfo is the snapshot passed by value to the kernel
// exception collaborator: the frame-derived fault state plus the four
// control registers exposing the fault address, translation roots and
// feature flags.
type KernelFaultInfo struct {
	Vector  Vector
	ErrCode uint64
	IP      uint64
	SP      uint64
	Flags   uint64
	CR0     uint64
	CR2     uint64
	CR3     uint64
	CR4     uint64
}

// kernelFault handles a synchronous exception taken while already in
// kernel mode. Anything the collaborator cannot resolve is fatal at
// its discretion; this path performs no retries.
func (c *CPU) kernelFault(v Vector, errCode uint64) {
	if c.kernel.conf.HardwareDebug && v == Debug {
		if *c.stubWord(stubOffFlags)&_FLAG_TF != 0 {
			// Artifact of single-stepping through the fast
			// syscall entry, which does not clear the trap
			// flag on its own. Clear it in the saved image and
			// resume; the debug subsystem re-arms single-step
			// for the thread on its next return to user.
			*c.stubWord(stubOffFlags) &^= _FLAG_TF
			c.record(ClearSavedTF, v, *c.stubWord(stubOffFlags))
			c.pop() // error code
			c.iret()
			return
		}
	}

	c.push(uint64(v))
	c.pushGPRs()

	f := c.readFrame()
	info := KernelFaultInfo{
		Vector:  v,
		ErrCode: errCode,
		IP:      f.IP,
		SP:      f.SP,
		Flags:   f.Flags,
		CR0:     c.cr0,
		CR2:     c.cr2,
		CR3:     c.cr3,
		CR4:     c.cr4,
	}
	c.record(DispatchKernelFault, v, errCode)
	resumeIP := c.hooks.HandleKernelFault(info)

	// The collaborator may have adjusted the resumption point, e.g.
	// to step over a faulting instruction.
	*c.frameWord(slotIP) = resumeIP

	c.restoreKernelFrame()
}
