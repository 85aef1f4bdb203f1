package main

import (
	"errors"
	"testing"
)

func TestExtranonceAllocatorLowestFree(t *testing.T) {
	a := newExtranonceAllocator()
	first, err := a.allocate(2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	second, _ := a.allocate(2)
	third, _ := a.allocate(2)
	if first.Hex() != "0000" || second.Hex() != "0001" || third.Hex() != "0002" {
		t.Fatalf("tokens got %s %s %s", first.Hex(), second.Hex(), third.Hex())
	}

	a.release(second)
	again, _ := a.allocate(2)
	if again.Hex() != "0001" {
		t.Fatalf("reallocated got %s want 0001", again.Hex())
	}
	if got := a.active(); got != 3 {
		t.Fatalf("active got %d want 3", got)
	}
}

func TestExtranonceAllocatorExhaustion(t *testing.T) {
	a := newExtranonceAllocatorWithLimit(3)
	var toks []extranonceToken
	for i := 0; i <= 3; i++ {
		tok, err := a.allocate(2)
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		toks = append(toks, tok)
	}
	if _, err := a.allocate(2); !errors.Is(err, errPoolExhausted) {
		t.Fatalf("allocate past limit got %v want %v", err, errPoolExhausted)
	}
	a.release(toks[2])
	tok, err := a.allocate(2)
	if err != nil {
		t.Fatalf("allocate after release: %v", err)
	}
	if tok.value != 2 {
		t.Fatalf("value got %d want 2", tok.value)
	}
}

func TestExtranonceAllocatorFullRangeUnique(t *testing.T) {
	a := newExtranonceAllocator()
	seen := make(map[string]struct{}, maxExtranonceValue+1)
	for i := 0; i <= maxExtranonceValue; i++ {
		tok, err := a.allocate(2)
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if _, dup := seen[tok.Hex()]; dup {
			t.Fatalf("duplicate token %s", tok.Hex())
		}
		seen[tok.Hex()] = struct{}{}
	}
	if _, err := a.allocate(2); !errors.Is(err, errPoolExhausted) {
		t.Fatalf("got %v want %v", err, errPoolExhausted)
	}
}

func TestExtranonceSizeZeroDoesNotDrawFromPool(t *testing.T) {
	a := newExtranonceAllocatorWithLimit(0)
	tok, err := a.allocate(0)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if tok.Hex() != "" {
		t.Fatalf("hex got %q want empty", tok.Hex())
	}
	a.release(tok)
	if got := a.active(); got != 0 {
		t.Fatalf("active got %d want 0", got)
	}
	if _, err := a.allocate(2); err != nil {
		t.Fatalf("pool token still free: %v", err)
	}
}

func TestExtranonceReleaseTwiceIsHarmless(t *testing.T) {
	a := newExtranonceAllocator()
	tok, _ := a.allocate(2)
	a.release(tok)
	a.release(tok)
	if got := a.active(); got != 0 {
		t.Fatalf("active got %d want 0", got)
	}
}
