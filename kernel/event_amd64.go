// SPDX-License-Identifier: Unlicense OR MIT

package kernel

// EventKind names an observable step of the entry layer.
type EventKind uint8

const (
	LoadKernelCR3 EventKind = iota
	SwapGS
	SaveContext
	DispatchInterrupt
	DispatchNested
	DispatchKernelFault
	DispatchSyscall
	DispatchVMExit
	ClearSavedIF
	ClearSavedTF
	SkipRedZone
	RestoreHostMSRs
	Resume
)

var eventKindNames = [...]string{
	LoadKernelCR3:       "load-kernel-cr3",
	SwapGS:              "swapgs",
	SaveContext:         "save-context",
	DispatchInterrupt:   "dispatch-interrupt",
	DispatchNested:      "dispatch-nested",
	DispatchKernelFault: "dispatch-kernel-fault",
	DispatchSyscall:     "dispatch-syscall",
	DispatchVMExit:      "dispatch-vmexit",
	ClearSavedIF:        "clear-saved-if",
	ClearSavedTF:        "clear-saved-tf",
	SkipRedZone:         "skip-red-zone",
	RestoreHostMSRs:     "restore-host-msrs",
	Resume:              "resume",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// Event is one recorded entry-layer step. The record is the
// instrumented harness that ordering guarantees are checked against.
type Event struct {
	Kind   EventKind
	Vector Vector
	Value  uint64
}
