// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import (
	"fmt"
	"strings"
)

// Dump renders the register file for diagnostics.
func (r *Regs) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "IP  = %016x SP  = %016x FLG = %016x\n", r.IP, r.SP, r.Flags)
	fmt.Fprintf(&b, "AX  = %016x BX  = %016x CX  = %016x\n", r.AX, r.BX, r.CX)
	fmt.Fprintf(&b, "DX  = %016x SI  = %016x DI  = %016x\n", r.DX, r.SI, r.DI)
	fmt.Fprintf(&b, "BP  = %016x R8  = %016x R9  = %016x\n", r.BP, r.R8, r.R9)
	fmt.Fprintf(&b, "R10 = %016x R11 = %016x R12 = %016x\n", r.R10, r.R11, r.R12)
	fmt.Fprintf(&b, "R13 = %016x R14 = %016x R15 = %016x\n", r.R13, r.R14, r.R15)
	return b.String()
}

// Dump renders a trap frame for diagnostics.
func (f *TrapFrame) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "VEC = %016x ERR = %016x\n", f.Vector, f.ErrCode)
	fmt.Fprintf(&b, "IP  = %016x CS  = %016x\n", f.IP, f.CS)
	fmt.Fprintf(&b, "SP  = %016x SS  = %016x\n", f.SP, f.SS)
	fmt.Fprintf(&b, "FLG = %016x\n", f.Flags)
	fmt.Fprintf(&b, "AX  = %016x BX  = %016x CX  = %016x\n", f.AX, f.BX, f.CX)
	fmt.Fprintf(&b, "DX  = %016x SI  = %016x DI  = %016x\n", f.DX, f.SI, f.DI)
	fmt.Fprintf(&b, "BP  = %016x R8  = %016x R9  = %016x\n", f.BP, f.R8, f.R9)
	fmt.Fprintf(&b, "R10 = %016x R11 = %016x R12 = %016x\n", f.R10, f.R11, f.R12)
	fmt.Fprintf(&b, "R13 = %016x R14 = %016x R15 = %016x\n", f.R13, f.R14, f.R15)
	return b.String()
}

// CurrentContext returns the running thread's saved-context slot.
func (c *CPU) CurrentContext() *TrapFrame {
	return c.core.current
}

func (e Event) String() string {
	return fmt.Sprintf("%-22s vec=%#04x val=%#x", e.Kind, uintptr(e.Vector), e.Value)
}
