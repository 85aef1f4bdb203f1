package main

import (
	"fmt"
	"math/bits"
	"sync"
)

type extranonceToken struct {
	value  int
	size   int
	pooled bool
}

func (t extranonceToken) Hex() string {
	if t.size == 0 {
		return ""
	}
	return fmt.Sprintf("%0*x", t.size*2, t.value)
}

// extranonceAllocator hands out the lowest free token in
// [0, maxExtranonceValue] and takes it back on session close.
type extranonceAllocator struct {
	mu    sync.Mutex
	used  []uint64
	limit int
	inUse int
}

func newExtranonceAllocator() *extranonceAllocator {
	return newExtranonceAllocatorWithLimit(maxExtranonceValue)
}

func newExtranonceAllocatorWithLimit(maxValue int) *extranonceAllocator {
	return &extranonceAllocator{
		used:  make([]uint64, (maxValue+64)/64),
		limit: maxValue,
	}
}

func (a *extranonceAllocator) allocate(size int) (extranonceToken, error) {
	if size <= 0 {
		return extranonceToken{}, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for word, bitsUsed := range a.used {
		if bitsUsed == ^uint64(0) {
			continue
		}
		v := word*64 + bits.TrailingZeros64(^bitsUsed)
		if v > a.limit {
			break
		}
		a.used[word] |= 1 << uint(v%64)
		a.inUse++
		return extranonceToken{value: v, size: size, pooled: true}, nil
	}
	return extranonceToken{}, errPoolExhausted
}

func (a *extranonceAllocator) release(tok extranonceToken) {
	if !tok.pooled {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	word, bit := tok.value/64, uint(tok.value%64)
	if word >= len(a.used) || a.used[word]&(1<<bit) == 0 {
		return
	}
	a.used[word] &^= 1 << bit
	a.inUse--
}

func (a *extranonceAllocator) active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse
}
