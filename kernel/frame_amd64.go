// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// The trap frame is the one memory layout hardware and software agree
// on for a suspended execution context. Every entry path produces it
// at the same slot offsets so the restore code can be shared; the
// save and restore of each path walk a single slot sequence, forward
// to push and backward to pop, so the two sides cannot drift apart.

// frameSlot indexes a word of the trap frame. The constant order is
// the on-stack layout, lowest address first.
type frameSlot uint8

const (
	slotR15 frameSlot = iota
	slotR14
	slotR13
	slotR12
	slotR11
	slotR10
	slotR9
	slotR8
	slotBP
	slotDI
	slotSI
	slotDX
	slotCX
	slotBX
	slotAX
	slotVector
	slotErrCode
	slotIP
	slotCS
	slotFlags
	slotSP
	slotSS

	frameWords
)

// TrapFrame is the trap frame as a record. Field order mirrors the
// on-stack layout (lowest address first); the same type doubles as
// the per-thread saved-context slot the user entry paths fill in.
type TrapFrame struct {
	R15     uint64
	R14     uint64
	R13     uint64
	R12     uint64
	R11     uint64
	R10     uint64
	R9      uint64
	R8      uint64
	BP      uint64
	DI      uint64
	SI      uint64
	DX      uint64
	CX      uint64
	BX      uint64
	AX      uint64
	Vector  uint64
	ErrCode uint64
	IP      uint64
	CS      uint64
	Flags   uint64
	SP      uint64
	SS      uint64
}

func (f *TrapFrame) slot(s frameSlot) *uint64 {
	switch s {
	case slotR15:
		return &f.R15
	case slotR14:
		return &f.R14
	case slotR13:
		return &f.R13
	case slotR12:
		return &f.R12
	case slotR11:
		return &f.R11
	case slotR10:
		return &f.R10
	case slotR9:
		return &f.R9
	case slotR8:
		return &f.R8
	case slotBP:
		return &f.BP
	case slotDI:
		return &f.DI
	case slotSI:
		return &f.SI
	case slotDX:
		return &f.DX
	case slotCX:
		return &f.CX
	case slotBX:
		return &f.BX
	case slotAX:
		return &f.AX
	case slotVector:
		return &f.Vector
	case slotErrCode:
		return &f.ErrCode
	case slotIP:
		return &f.IP
	case slotCS:
		return &f.CS
	case slotFlags:
		return &f.Flags
	case slotSP:
		return &f.SP
	case slotSS:
		return &f.SS
	}
	fatal("slot: bad frame slot")
	return nil
}

// gprSave is the general-purpose save sequence shared by the
// interrupt, exception and nested paths. Pushing walks it forward, so
// AX lands at the highest address and R15 at the frame base.
var gprSave = [...]frameSlot{
	slotAX, slotBX, slotCX, slotDX, slotSI, slotDI, slotBP,
	slotR8, slotR9, slotR10, slotR11, slotR12, slotR13, slotR14, slotR15,
}

// fastSyscallSave is the fast-syscall save sequence. CX and R11 are
// clobbered by the transition mechanism itself and carry the return
// IP and flags instead; they are saved through those fields, not here.
var fastSyscallSave = [...]frameSlot{
	slotAX, slotBX, slotDX, slotSI, slotDI, slotBP,
	slotR8, slotR9, slotR10, slotR12, slotR13, slotR14, slotR15,
}

// ErrCodeFastSyscall is the synthetic error code marking a frame built
// by a fast syscall entry rather than an interrupt or exception.
const ErrCodeFastSyscall = ^uint64(0)

// SyscallArgs reads the syscall number, capability register and
// message-info register from a frame. The slots sit at the same
// offsets whether the frame was built by a fast syscall entry or the
// software-interrupt vector, so one accessor serves both.
func SyscallArgs(f *TrapFrame) (sysno, cptr, msgInfo uint64) {
	return f.DX, f.DI, f.SI
}

// pushGPRs appends the general-purpose registers to the frame under
// construction at SP.
func (c *CPU) pushGPRs() {
	for _, s := range gprSave[:] {
		c.push(*c.regs.slot(s))
	}
}

// popGPRs is the exact reverse of pushGPRs.
func (c *CPU) popGPRs() {
	for i := len(gprSave) - 1; i >= 0; i-- {
		*c.regs.slot(gprSave[i]) = c.pop()
	}
}

// frameWord addresses one slot of the completed frame based at SP.
func (c *CPU) frameWord(s frameSlot) *uint64 {
	return c.word(virtualAddress(c.regs.SP + uint64(s)*8))
}

// readFrame copies the completed frame based at SP.
func (c *CPU) readFrame() TrapFrame {
	var f TrapFrame
	for s := frameSlot(0); s < frameWords; s++ {
		*f.slot(s) = *c.frameWord(s)
	}
	return f
}

// Offsets of the hardware-pushed tail relative to the error-code slot,
// where SP sits while an entry stub runs.
const (
	stubOffErrCode = iota
	stubOffIP
	stubOffCS
	stubOffFlags
	stubOffSP
	stubOffSS
)

// stubWord addresses one word of the partial frame an entry stub sees.
func (c *CPU) stubWord(off int) *uint64 {
	return c.word(virtualAddress(c.regs.SP + uint64(off)*8))
}
