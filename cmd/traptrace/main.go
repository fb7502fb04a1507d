// SPDX-License-Identifier: Unlicense OR MIT

// Command traptrace runs a scripted set of traps against the modelled
// entry layer and prints the recorded event stream for each, the way
// a serial console would show an instrumented boot.
package main

import (
	"fmt"
	"log"

	"trapgate/kernel"
)

const (
	kernelCR3 = 0x100000
	userCR3   = 0x200000

	userText  = 0x400000
	userStack = 0x7f0000000000
)

// hooks is a minimal dispatch collaborator: it logs every crossing
// and immediately resumes whatever was interrupted.
type hooks struct{}

func (hooks) HandleInterrupt(v kernel.Vector, errCode uint64) {
	log.Printf("interrupt vec=%#x err=%#x", uintptr(v), errCode)
}

func (hooks) HandleNestedInterrupt(v kernel.Vector) {
	log.Printf("nested interrupt vec=%#x", uintptr(v))
}

func (hooks) HandleKernelFault(info kernel.KernelFaultInfo) uint64 {
	log.Printf("kernel fault vec=%#x err=%#x ip=%#x cr2=%#x",
		uintptr(info.Vector), info.ErrCode, info.IP, info.CR2)
	return info.IP
}

func (hooks) HandleSyscall(sysno, cptr, msgInfo uint64) {
	log.Printf("syscall no=%d cap=%#x info=%#x", sysno, cptr, msgInfo)
}

func (hooks) HandleVMExit() {
	log.Println("vmexit")
}

func main() {
	log.SetFlags(0)

	k, err := kernel.New(kernel.Config{
		HardwareDebug:      true,
		Virtualization:     true,
		ExtendedGuestState: true,
	}, kernelCR3, 1)
	if err != nil {
		log.Fatal(err)
	}
	cpu, err := k.NewCPU(0, hooks{})
	if err != nil {
		log.Fatal(err)
	}

	// The first group runs in the boot kernel context, the second
	// after a hand-off to a modelled user thread.
	scenarios := []struct {
		name string
		run  func(*kernel.CPU)
	}{
		{"nested timer interrupt", nestedTimer},
		{"kernel page fault", kernelPageFault},
		{"single-step debug artifact", debugArtifact},
		{"VM exit with extended guest state", vmExit},
		{"timer interrupt from user mode", timerFromUser},
		{"page fault from user mode", pageFaultFromUser},
		{"SYSCALL fast path", fastSyscall},
		{"SYSENTER fast path", sysenter},
	}
	for _, s := range scenarios {
		fmt.Printf("== %s\n", s.name)
		cpu.ResetEvents()
		s.run(cpu)
		for _, e := range cpu.Events() {
			fmt.Printf("   %s\n", e)
		}
	}
}

func nestedTimer(cpu *kernel.CPU) {
	cpu.SetIdle(false)
	cpu.DeliverTrap(kernel.TimerInterrupt, 0)
	cpu.SetIdle(true)
}

func kernelPageFault(cpu *kernel.CPU) {
	cpu.SetCR2(0xffffff80dead0000)
	cpu.DeliverTrap(kernel.PageFault, 0x2)
}

func debugArtifact(cpu *kernel.CPU) {
	// The trap flag is still set when a single-stepped thread enters
	// the kernel through the fast syscall path.
	cpu.Registers().Flags |= 1 << 8 // TF
	cpu.DeliverTrap(kernel.Debug, 0)
}

func vmExit(cpu *kernel.CPU) {
	g := cpu.NewGuestState()
	g.Regs.AX = 0x1234
	cpu.VMExit(g)
	cpu.VMEntryRestore(g)
	fmt.Print(g.Regs.Dump())
}

var userSP uint64

func enterUser(cpu *kernel.CPU) {
	if userSP == 0 {
		userSP = cpu.AddUserStack(userStack)
	}
	cpu.EnterUser(userText, userSP)
}

func timerFromUser(cpu *kernel.CPU) {
	enterUser(cpu)
	cpu.DeliverTrap(kernel.TimerInterrupt, 0)
	fmt.Print(cpu.CurrentContext().Dump())
	cpu.ReturnToUser(userCR3)
}

func pageFaultFromUser(cpu *kernel.CPU) {
	enterUser(cpu)
	cpu.SetCR2(0x7f0000fff000)
	cpu.DeliverTrap(kernel.PageFault, 0x6)
	cpu.ReturnToUser(userCR3)
}

func fastSyscall(cpu *kernel.CPU) {
	enterUser(cpu)
	r := cpu.Registers()
	r.DX, r.DI, r.SI = 2, 0x41, 0x1000
	cpu.SyscallEntry()
	cpu.SysretToUser(userCR3)
}

func sysenter(cpu *kernel.CPU) {
	enterUser(cpu)
	r := cpu.Registers()
	r.CX, r.BP = userText+2, r.SP
	r.DX, r.DI, r.SI = 3, 0x42, 0x2000
	cpu.SysenterEntry()
	cpu.SysretToUser(userCR3)
}
