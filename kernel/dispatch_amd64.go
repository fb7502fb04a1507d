// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// Hooks is the fixed calling contract to architecture-independent
// kernel logic. The entry layer forwards values derived from the trap
// frame, never the frame itself, to keep the boundary narrow.
type Hooks interface {
	// HandleInterrupt is the generic interrupt/exception dispatch
	// for user-mode traps and first-level kernel interrupts. It does
	// not return control to the entry layer except through a later
	// explicit ReturnToUser, or by plain return on the kernel
	// interrupt path, which then funnels into the shared restore.
	HandleInterrupt(v Vector, errCode uint64)

	// HandleNestedInterrupt records an interrupt that arrived while
	// the kernel was already executing. Bookkeeping only; it returns
	// normally and the nested protocol resumes the outer context.
	HandleNestedInterrupt(v Vector)

	// HandleKernelFault handles a synchronous exception taken in
	// kernel mode. It returns the instruction pointer to resume at,
	// or does not return at all if the fault is a kernel-integrity
	// failure.
	HandleKernelFault(info KernelFaultInfo) uint64

	// HandleSyscall is the one-way syscall dispatch. It owns all
	// further control flow including the eventual return to user
	// via SysretToUser.
	HandleSyscall(sysno, cptr, msgInfo uint64)

	// HandleVMExit is the one-way vmexit dispatch; the saved guest
	// state is implicit in the guest-state area.
	HandleVMExit()
}
