// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// Regs is the complete integer register file of a core. The exact
// field set matches what the entry paths save and restore.
type Regs struct {
	IP    uint64
	SP    uint64
	Flags uint64
	AX    uint64
	BX    uint64
	CX    uint64
	DX    uint64
	SI    uint64
	DI    uint64
	BP    uint64
	R8    uint64
	R9    uint64
	R10   uint64
	R11   uint64
	R12   uint64
	R13   uint64
	R14   uint64
	R15   uint64
}

// slot returns the register backing a trap-frame slot. Only slots that
// name a live register resolve; frame-only slots are a fatal request.
func (r *Regs) slot(s frameSlot) *uint64 {
	switch s {
	case slotAX:
		return &r.AX
	case slotBX:
		return &r.BX
	case slotCX:
		return &r.CX
	case slotDX:
		return &r.DX
	case slotSI:
		return &r.SI
	case slotDI:
		return &r.DI
	case slotBP:
		return &r.BP
	case slotR8:
		return &r.R8
	case slotR9:
		return &r.R9
	case slotR10:
		return &r.R10
	case slotR11:
		return &r.R11
	case slotR12:
		return &r.R12
	case slotR13:
		return &r.R13
	case slotR14:
		return &r.R14
	case slotR15:
		return &r.R15
	case slotIP:
		return &r.IP
	case slotSP:
		return &r.SP
	case slotFlags:
		return &r.Flags
	}
	fatal("slot: no live register for frame slot")
	return nil
}
