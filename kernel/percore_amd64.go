// SPDX-License-Identifier: Unlicense OR MIT

package kernel

type coreID uint32

// kernelActivity is the idle sentinel. The original convention is a
// saved stack pointer slot whose zero value marks the idle loop; the
// model makes it an explicit enum, written by the idle-loop
// collaborator and read (never written) by the interrupt demux.
type kernelActivity uint8

const (
	coreIdle kernelActivity = iota
	coreBusy
)

// coreState is one core's private record: its two stacks, the task
// state selecting them on privilege crossings, the saved-context slot
// of the running thread, and the host segment-base values restored
// after a guest exit. Initialized once at boot, mutated only by the
// owning core, never shared.
type coreState struct {
	id coreID

	kernelStack    kstack
	interruptStack kstack
	tss            tss

	// current is where user-mode entries save the interrupted
	// context and where the fast paths find it again.
	current *TrapFrame

	activity kernelActivity

	hostFSBase       uint64
	hostGSBase       uint64
	hostShadowGSBase uint64
}

// Per-core stack placement. Each core owns a disjoint window.
const (
	coreStackBase   virtualAddress = 0xffffff8000000000
	coreStackStride virtualAddress = 0x10000
)

func (cs *coreState) init(id coreID) {
	base := coreStackBase + virtualAddress(id)*coreStackStride
	cs.id = id
	cs.kernelStack = newStack(base)
	cs.interruptStack = newStack(base + coreStackStride/2)
	cs.current = new(TrapFrame)
	cs.activity = coreIdle
	cs.tss.setRSP(0, cs.kernelStack.top())
	cs.tss.setIST(istGeneric, cs.interruptStack.top())
	cs.hostFSBase = uint64(base) | hostFSBaseTag
	cs.hostGSBase = cs.gsToken()
	cs.hostShadowGSBase = uint64(base) | hostShadowGSBaseTag
}

// Distinguishable host segment-base values, so tests can tell which
// fixed storage an MSR was reloaded from.
const (
	hostFSBaseTag       = 0x1
	hostShadowGSBaseTag = 0x2
)

// gsToken is the kernel GS base value that locates this core's state.
func (cs *coreState) gsToken() uint64 {
	return uint64(coreStackBase) | uint64(cs.id)<<4
}
