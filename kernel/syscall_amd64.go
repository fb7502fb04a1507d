// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// The two fast syscall entry paths. Both bypass the vector table and
// the general gate mechanism, and both must end up with a trap frame
// equivalent to the interrupt path's, in the running thread's saved
// context slot, despite different initial register conventions:
//
//   SYSCALL:  hardware leaves the return address in CX and the flags
//             in R11; the stack pointer is untouched (still user).
//   SYSENTER: hardware saves nothing; by convention the user return
//             address arrives in CX and the user stack pointer in BP.
//
// The syscall number travels in DX, the capability register in DI and
// the message info in SI on both paths.

const (
	_MSR_STAR  = 0xc0000081
	_MSR_LSTAR = 0xc0000082
	_MSR_FSTAR = 0xc0000084

	_MSR_SYSENTER_CS  = 0x174
	_MSR_SYSENTER_ESP = 0x175
	_MSR_SYSENTER_EIP = 0x176
)

// lstarEntry is the modelled LSTAR target; there is no real code
// address to install, only a recognizable value.
const lstarEntry = 0xffffff80aa000000

// initSyscall programs both fast-transition mechanisms, as boot does.
func (c *CPU) initSyscall() {
	// Segments for SYSCALL/SYSRET.
	syscallSeg := uint64(kcodeSelector)
	sysretSeg := uint64(segment32Code3<<3) | uint64(ring3)
	c.wrmsr(_MSR_STAR, syscallSeg<<32|sysretSeg<<48)
	// Flags cleared on SYSCALL entry.
	c.wrmsr(_MSR_FSTAR, _FLAG_IF|_FLAG_TF|_FLAG_AC|_FLAG_DF)
	c.wrmsr(_MSR_LSTAR, lstarEntry)

	c.wrmsr(_MSR_SYSENTER_CS, uint64(kcodeSelector))
	c.wrmsr(_MSR_SYSENTER_ESP, uint64(c.core.kernelStack.top()))
	c.wrmsr(_MSR_SYSENTER_EIP, lstarEntry)

	// Enable the SYSCALL instruction.
	efer := c.rdmsr(_MSR_IA32_EFER)
	c.wrmsr(_MSR_IA32_EFER, efer|_EFER_SCE)
}

// SyscallEntry models a user thread executing SYSCALL.
func (c *CPU) SyscallEntry() {
	if !c.userMode() {
		fatal("SyscallEntry: not in user mode")
	}
	// Hardware: return address to CX, flags to R11, masked flags,
	// kernel segments. The stack pointer is left as the user's.
	c.regs.CX = c.regs.IP
	c.regs.R11 = c.regs.Flags
	c.regs.Flags &^= c.rdmsr(_MSR_FSTAR)
	c.regs.IP = c.rdmsr(_MSR_LSTAR)
	c.cs, c.ss = kcodeSelector, kdataSelector

	c.fastSyscallEntry(c.regs.CX, c.regs.SP, c.regs.R11)
}

// SysenterEntry models a user thread executing SYSENTER.
func (c *CPU) SysenterEntry() {
	if !c.userMode() {
		fatal("SysenterEntry: not in user mode")
	}
	userIP, userSP := c.regs.CX, c.regs.BP
	// Hardware: fixed target, interrupts masked, kernel segments and
	// the kernel stack from the SYSENTER MSRs. Nothing is saved; the
	// entry code located the resumption fields above itself.
	c.regs.IP = c.rdmsr(_MSR_SYSENTER_EIP)
	c.regs.SP = c.rdmsr(_MSR_SYSENTER_ESP)
	c.regs.Flags &^= _FLAG_IF
	c.cs, c.ss = kcodeSelector, kdataSelector

	// The flags image to resume with is reconstructed, not saved:
	// SYSENTER destroyed it.
	c.fastSyscallEntry(userIP, userSP, userFlags)
}

// fastSyscallEntry is the shared tail of both fast paths: trusted
// address space first, context-addressing swap, frame construction in
// the thread's saved-context slot, then the one-way transfer into
// syscall dispatch. Control never returns through this layer; the
// collaborator owns everything up to the eventual SysretToUser.
func (c *CPU) fastSyscallEntry(userIP, userSP, userFl uint64) {
	c.writeCR3(c.kernel.kernelCR3)
	c.swapgs()

	ctx := c.core.current
	for _, s := range fastSyscallSave[:] {
		*ctx.slot(s) = *c.regs.slot(s)
	}
	ctx.IP = userIP
	ctx.SP = userSP
	ctx.Flags = userFl
	ctx.Vector = uint64(Syscall)
	ctx.ErrCode = ErrCodeFastSyscall
	// The mechanism does not change segments on the way back; the
	// selector slots stay unsaved.
	ctx.CS, ctx.SS = 0, 0
	c.record(SaveContext, Syscall, ErrCodeFastSyscall)

	c.regs.SP = uint64(c.core.tss.rsp0)
	c.core.activity = coreBusy

	sysno, cptr, msgInfo := SyscallArgs(ctx)
	c.record(DispatchSyscall, Syscall, sysno)
	c.hooks.HandleSyscall(sysno, cptr, msgInfo)
}

// SysretToUser resumes the thread whose context the last fast syscall
// entry saved: the exact inverse of that save sequence, ending in the
// fast return mechanism. Called by the dispatch collaborator.
func (c *CPU) SysretToUser(userCR3 uint64) {
	ctx := c.core.current
	for i := len(fastSyscallSave) - 1; i >= 0; i-- {
		*c.regs.slot(fastSyscallSave[i]) = *ctx.slot(fastSyscallSave[i])
	}
	c.swapgs()
	c.writeCR3(userCR3)
	// SYSRET: return address from CX, flags from R11.
	c.regs.CX = ctx.IP
	c.regs.R11 = ctx.Flags
	c.regs.IP = ctx.IP
	c.regs.Flags = ctx.Flags | _FLAG_RESERVED
	c.regs.SP = ctx.SP
	c.cs, c.ss = ucode64Selector, udataSelector
	c.core.activity = coreIdle
	c.record(Resume, Syscall, 0)
}
