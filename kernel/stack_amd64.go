// SPDX-License-Identifier: Unlicense OR MIT

package kernel

type virtualAddress uint64

// redZoneSize is the architecturally reserved scratch region below a
// stack pointer. Interrupted kernel code may already be using it, so
// kernel-mode trap delivery must not build a frame inside it.
const redZoneSize = 128

// stackWords is the size of each modelled stack.
const stackWords = 512

// kstack is a stack region: a base address and backing words. Stacks
// grow down from top().
type kstack struct {
	base virtualAddress
	mem  []uint64
}

func newStack(base virtualAddress) kstack {
	if base%16 != 0 {
		fatal("newStack: misaligned stack base")
	}
	return kstack{base: base, mem: make([]uint64, stackWords)}
}

func (s *kstack) top() virtualAddress {
	return s.base + virtualAddress(len(s.mem)*8)
}

func (s *kstack) contains(addr virtualAddress) bool {
	return addr >= s.base && addr < s.top()
}

func (s *kstack) word(addr virtualAddress) *uint64 {
	if !s.contains(addr) {
		fatal("word: address outside stack")
	}
	if addr%8 != 0 {
		fatal("word: misaligned stack access")
	}
	return &s.mem[(addr-s.base)/8]
}
