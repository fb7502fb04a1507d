// SPDX-License-Identifier: Unlicense OR MIT

// Package kernel models the trap-entry layer of an x86-64 microkernel:
// the code that runs in the first instructions after an exception,
// external interrupt, fast system call or VM exit, before control is
// handed to architecture-independent kernel logic.
//
// The hardware is modelled explicitly. A CPU value is the architectural
// state of one core; trap delivery, the entry stubs, register
// save/restore and resumption are ordinary functions operating on it,
// so every ordering and symmetry rule of the real entry code can be
// exercised from tests.
package kernel

// kernError is an error type usable in kernel code.
type kernError string

func (k kernError) Error() string {
	return string(k)
}

// fatal reports a state the real entry code could not recover from or
// report. The model panics; the hardware equivalent is a wedged core.
func fatal(msg string) {
	panic("kernel: " + msg)
}

const (
	_MSR_IA32_EFER       = 0xc0000080
	_MSR_FS_BASE         = 0xc0000100
	_IA32_GS_BASE        = 0xc0000101
	_IA32_KERNEL_GS_BASE = 0xc0000102

	_EFER_SCE = 1 << 0 // Enable SYSCALL.
)

// Processor flags.
const (
	_FLAG_RESERVED = 1 << 1 // Always set.
	_FLAG_TF       = 1 << 8
	_FLAG_IF       = 1 << 9
	_FLAG_DF       = 1 << 10
	_FLAG_AC       = 1 << 18
)

// Flag images established on mode switches.
const (
	kernelFlags = _FLAG_RESERVED
	userFlags   = _FLAG_RESERVED | _FLAG_IF
)

// Config selects the optional hardware facilities of the modelled
// machine. It is fixed at construction time.
type Config struct {
	// HardwareDebug enables the single-step/debug facility and with
	// it the trap-flag special case on the kernel exception path.
	HardwareDebug bool
	// Virtualization enables guest execution and the VM-exit path.
	Virtualization bool
	// ExtendedGuestState selects the 64-bit guest register set,
	// which widens the VM-exit save sequence and adds the
	// segment-base MSR swap.
	ExtendedGuestState bool
}

// Kernel is the state shared by every core: the configuration, the
// trusted address-space root, the interrupt descriptor table and the
// per-core state table.
type Kernel struct {
	conf Config

	// kernelCR3 is the kernel's own address-space root. It is loaded
	// on every privilege-crossing entry before any other kernel
	// state is touched.
	kernelCR3 uint64

	idt   idt
	cores []coreState
}

// New builds the shared kernel state for ncores cores. kernelCR3 is
// the trusted address-space root established by boot code.
func New(conf Config, kernelCR3 uint64, ncores int) (*Kernel, error) {
	if ncores < 1 {
		return nil, kernError("New: need at least one core")
	}
	k := &Kernel{
		conf:      conf,
		kernelCR3: kernelCR3,
		cores:     make([]coreState, ncores),
	}
	for i := range k.cores {
		k.cores[i].init(coreID(i))
	}
	k.installVectors()
	return k, nil
}

// Config returns the facility configuration the kernel was built with.
func (k *Kernel) Config() Config {
	return k.conf
}

// CPU models the architectural state of a single core. All mutation
// happens on the owning core; nothing here is shared between CPUs
// except the read-only Kernel state.
type CPU struct {
	kernel *Kernel
	core   *coreState
	hooks  Hooks

	regs   Regs
	cs, ss uint16

	cr0, cr2, cr3, cr4 uint64
	msrs               map[uint32]uint64

	// mem is the set of stack regions words can be read and written
	// through. Anything outside them is a fatal access.
	mem []*kstack

	events []Event
}

// NewCPU binds a CPU model to the per-core state for core id. hooks is
// the dispatch boundary to architecture-independent logic.
func (k *Kernel) NewCPU(id int, hooks Hooks) (*CPU, error) {
	if id < 0 || id >= len(k.cores) {
		return nil, kernError("NewCPU: core id out of range")
	}
	if hooks == nil {
		return nil, kernError("NewCPU: nil hooks")
	}
	core := &k.cores[id]
	c := &CPU{
		kernel: k,
		core:   core,
		hooks:  hooks,
		cs:     kcodeSelector,
		ss:     kdataSelector,
		cr3:    k.kernelCR3,
		msrs:   make(map[uint32]uint64),
	}
	c.regs.Flags = kernelFlags
	c.regs.SP = uint64(core.kernelStack.top())
	c.mem = append(c.mem, &core.kernelStack, &core.interruptStack)
	// The kernel-half GS base locates the per-core state while the
	// kernel executes; the user half belongs to the thread.
	c.wrmsr(_IA32_GS_BASE, core.gsToken())
	c.initSyscall()
	return c, nil
}

// Registers returns the live register file. Tests and the dispatch
// collaborator may modify it directly.
func (c *CPU) Registers() *Regs {
	return &c.regs
}

// AddUserStack allocates and maps a stack region at base for a
// modelled user thread and returns its initial stack pointer.
func (c *CPU) AddUserStack(base uint64) uint64 {
	s := newStack(virtualAddress(base))
	c.mem = append(c.mem, &s)
	return uint64(s.top())
}

// EnterUser puts the core in user mode at ip with stack sp, the way a
// completed boot hand-off would.
func (c *CPU) EnterUser(ip, sp uint64) {
	c.regs.IP = ip
	c.regs.SP = sp
	c.regs.Flags = userFlags
	c.cs = ucode64Selector
	c.ss = udataSelector
}

// userMode reports whether the core currently executes with user
// privilege, from the RPL bits of the code segment selector.
func (c *CPU) userMode() bool {
	return c.cs&3 != 0
}

// SetIdle records whether the kernel on this core is idle. The idle
// convention belongs to the idle-loop collaborator; the entry layer
// only reads it to distinguish first-level from nested interrupts.
func (c *CPU) SetIdle(idle bool) {
	if idle {
		c.core.activity = coreIdle
	} else {
		c.core.activity = coreBusy
	}
}

// writeCR3 switches the active address space.
func (c *CPU) writeCR3(root uint64) {
	c.cr3 = root
	if root == c.kernel.kernelCR3 {
		c.record(LoadKernelCR3, 0, root)
	}
}

// ReadCR2 returns the page-fault address register.
func (c *CPU) ReadCR2() uint64 {
	return c.cr2
}

// SetCR2 models the hardware latching a faulting address; tests and
// the demo use it before delivering a page fault.
func (c *CPU) SetCR2(addr uint64) {
	c.cr2 = addr
}

// swapgs exchanges the user and kernel GS base values, the
// inter-privilege context-addressing swap.
func (c *CPU) swapgs() {
	gs := c.msrs[_IA32_GS_BASE]
	c.msrs[_IA32_GS_BASE] = c.msrs[_IA32_KERNEL_GS_BASE]
	c.msrs[_IA32_KERNEL_GS_BASE] = gs
	c.record(SwapGS, 0, c.msrs[_IA32_GS_BASE])
}

func (c *CPU) wrmsr(register uint32, value uint64) {
	c.wrmsr0(register, uint32(value), uint32(value>>32))
}

func (c *CPU) rdmsr(register uint32) uint64 {
	lo, hi := c.rdmsr0(register)
	return uint64(hi)<<32 | uint64(lo)
}

// wrmsr0 and rdmsr0 move MSR values as the architected pair of 32-bit
// halves; the VM-exit path depends on the split form.
func (c *CPU) wrmsr0(register, lo, hi uint32) {
	c.msrs[register] = uint64(hi)<<32 | uint64(lo)
}

func (c *CPU) rdmsr0(register uint32) (lo, hi uint32) {
	v := c.msrs[register]
	return uint32(v), uint32(v >> 32)
}

// word resolves a stack address to backing storage.
func (c *CPU) word(addr virtualAddress) *uint64 {
	for _, s := range c.mem {
		if s.contains(addr) {
			return s.word(addr)
		}
	}
	fatal("word: access outside any mapped stack")
	return nil
}

func (c *CPU) push(v uint64) {
	c.regs.SP -= 8
	*c.word(virtualAddress(c.regs.SP)) = v
}

func (c *CPU) pop() uint64 {
	v := *c.word(virtualAddress(c.regs.SP))
	c.regs.SP += 8
	return v
}

func (c *CPU) record(kind EventKind, v Vector, value uint64) {
	c.events = append(c.events, Event{Kind: kind, Vector: v, Value: value})
}

// Events returns the recorded entry-layer events since the last reset,
// in order. This is the instrumented harness the ordering guarantees
// are verified against.
func (c *CPU) Events() []Event {
	return c.events
}

// ResetEvents clears the event record.
func (c *CPU) ResetEvents() {
	c.events = c.events[:0]
}
