// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// nestedInterrupt handles an interrupt that arrived while the kernel
// was already servicing something. The frame is saved exactly as on
// the normal path, on the current stack; switching stacks mid-nest
// would corrupt the outer frame. The red zone below the interrupted
// code was already skipped at delivery. The collaborator is told only
// the vector number; nested interrupts are recorded, not acted on.
func (c *CPU) nestedInterrupt(v Vector) {
	c.push(uint64(v))
	c.pushGPRs()

	c.record(DispatchNested, v, 0)
	c.hooks.HandleNestedInterrupt(v)

	// Clear IF in the image about to be restored, whatever it held:
	// no further nesting until the outer handler finishes its
	// critical section and re-enables interrupts itself.
	*c.frameWord(slotFlags) &^= _FLAG_IF
	c.record(ClearSavedIF, v, *c.frameWord(slotFlags))

	c.restoreKernelFrame()
}
