// SPDX-License-Identifier: Unlicense OR MIT

package kernel

import "testing"

// eventIndex returns the position of the first event of the given
// kind, or -1.
func eventIndex(events []Event, kind EventKind) int {
	for i, e := range events {
		if e.Kind == kind {
			return i
		}
	}
	return -1
}

// A privilege-crossing entry loads the kernel address-space root
// before any other kernel state is touched, then swaps the context
// base, saves the context and only then dispatches.
func TestUserEntryOrdering(t *testing.T) {
	c, h := newTestCPU(t, Config{})

	sp := c.AddUserStack(0x7f0000000000)
	c.EnterUser(0x400000, sp)
	c.ResetEvents()

	c.SetCR2(0xdead000)
	c.DeliverTrap(PageFault, 0x2)

	events := c.Events()
	if len(events) == 0 || events[0].Kind != LoadKernelCR3 {
		t.Fatalf("first event = %v, want load-kernel-cr3", events)
	}
	order := []EventKind{LoadKernelCR3, SwapGS, SaveContext, DispatchInterrupt}
	last := -1
	for _, k := range order {
		i := eventIndex(events, k)
		if i < 0 {
			t.Fatalf("event %v missing from %v", k, events)
		}
		if i < last {
			t.Fatalf("event %v out of order in %v", k, events)
		}
		last = i
	}

	if len(h.interrupts) != 1 || h.interrupts[0] != (trapRecord{PageFault, 0x2}) {
		t.Fatalf("dispatched %v, want page fault with error code 2", h.interrupts)
	}
	ctx := c.CurrentContext()
	if ctx.Vector != uint64(PageFault) || ctx.ErrCode != 0x2 {
		t.Fatalf("saved context vector/errcode = %#x/%#x", ctx.Vector, ctx.ErrCode)
	}
	if ctx.IP != 0x400000 || ctx.SP != sp {
		t.Fatalf("saved context IP/SP = %#x/%#x", ctx.IP, ctx.SP)
	}
	if c.regs.SP != uint64(c.core.tss.rsp0) {
		t.Fatalf("dispatch SP = %#x, want kernel stack top %#x",
			c.regs.SP, c.core.tss.rsp0)
	}
	if c.core.activity != coreBusy {
		t.Fatal("core not marked busy across an outermost user entry")
	}
}

// ReturnToUser is the exact inverse of the user entry save: the full
// register file, flags image, stack and mode come back bit for bit.
func TestReturnToUserRoundTrip(t *testing.T) {
	c, _ := newTestCPU(t, Config{})

	sp := c.AddUserStack(0x7f0000000000)
	c.EnterUser(0x400000, sp)
	fillRegs(&c.regs)
	before := c.regs

	c.DeliverTrap(TimerInterrupt, 0)
	c.ReturnToUser(testUserCR3)

	if c.regs != before {
		t.Fatalf("register file changed across the round trip:\nbefore:\n%s\nafter:\n%s",
			before.Dump(), c.regs.Dump())
	}
	if !c.userMode() {
		t.Fatal("not back in user mode")
	}
	if c.cr3 != testUserCR3 {
		t.Fatalf("cr3 = %#x, want %#x", c.cr3, testUserCR3)
	}
	if c.core.activity != coreIdle {
		t.Fatal("core still marked busy after returning to user")
	}
}

// An interrupt that catches the idle loop is an outermost entry; the
// same vector with the kernel mid-service is a nested one.
func TestKernelInterruptDemux(t *testing.T) {
	c, h := newTestCPU(t, Config{})

	c.SetIdle(true)
	c.DeliverTrap(TimerInterrupt, 0)
	if len(h.interrupts) != 1 || len(h.nested) != 0 {
		t.Fatalf("idle core: interrupts=%v nested=%v", h.interrupts, h.nested)
	}

	c.SetIdle(false)
	c.DeliverTrap(TimerInterrupt, 0)
	if len(h.interrupts) != 1 || len(h.nested) != 1 {
		t.Fatalf("busy core: interrupts=%v nested=%v", h.interrupts, h.nested)
	}
	if h.nested[0] != TimerInterrupt {
		t.Fatalf("nested vector = %#x", h.nested[0])
	}
}

// An interrupt taken from the idle loop leaves the idle sentinel the
// way it found it once the handler returns.
func TestIdleSentinelRestored(t *testing.T) {
	c, h := newTestCPU(t, Config{})

	c.SetIdle(true)
	var during kernelActivity
	h.onInterrupt = func(Vector, uint64) {
		during = c.core.activity
	}
	c.DeliverTrap(TimerInterrupt, 0)
	if during != coreBusy {
		t.Fatal("core not marked busy while the handler ran")
	}
	if c.core.activity != coreIdle {
		t.Fatal("idle sentinel not restored after the handler")
	}
}

// Delivery masks interrupts in the live flags but keeps the
// interrupted context's enable state in the saved image.
func TestDeliveryMasksLiveFlags(t *testing.T) {
	c, h := newTestCPU(t, Config{})

	c.regs.Flags = kernelFlags | _FLAG_IF
	var liveFlags uint64
	h.onInterrupt = func(Vector, uint64) {
		liveFlags = c.regs.Flags
	}
	c.SetIdle(true)
	c.DeliverTrap(TimerInterrupt, 0)

	if liveFlags&_FLAG_IF != 0 {
		t.Fatal("interrupts not masked while the handler ran")
	}
	if c.regs.Flags&_FLAG_IF == 0 {
		t.Fatal("saved enable state lost on return")
	}
}
