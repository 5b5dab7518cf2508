// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"errors"
	"testing"
)

func TestHash(t *testing.T) {
	if h := Hash(); h == 0 {
		t.Fatal("Hash():\nhave 0\nwant non-zero")
	}
	a := Hash(1, 2, 3)
	if b := Hash(1, 2, 3); a != b {
		t.Fatalf("Hash(1, 2, 3):\nhave %#x\nwant %#x", b, a)
	}
	if b := Hash(3, 2, 1); a == b {
		t.Fatalf("Hash(3, 2, 1):\nhave %#x\nwant != %#x", b, a)
	}
}

func TestCache(t *testing.T) {
	var evicted []uint32
	c, err := New(2, func(h uint32, _ string) { evicted = append(evicted, h) })
	if err != nil {
		t.Fatalf("New:\nhave %v\nwant nil", err)
	}
	var calls int
	create := func(s string) func() (string, error) {
		return func() (string, error) {
			calls++
			return s, nil
		}
	}
	if v, _ := c.GetOrCreate(1, create("a")); v != "a" {
		t.Fatalf("c.GetOrCreate(1):\nhave %q\nwant \"a\"", v)
	}
	if v, _ := c.GetOrCreate(1, create("x")); v != "a" || calls != 1 {
		t.Fatalf("c.GetOrCreate(1):\nhave %q, %d calls\nwant \"a\", 1 call", v, calls)
	}
	c.GetOrCreate(2, create("b"))
	c.GetOrCreate(3, create("c"))
	if len(evicted) != 1 || evicted[0] != 1 {
		t.Fatalf("evicted:\nhave %v\nwant [1]", evicted)
	}
	if _, ok := c.Get(1); ok {
		t.Fatal("c.Get(1):\nhave _, true\nwant _, false")
	}

	errFail := errors.New("compile failed")
	_, err = c.GetOrCreate(4, func() (string, error) { return "", errFail })
	if !errors.Is(err, errFail) {
		t.Fatalf("c.GetOrCreate(4):\nhave %v\nwant %v", err, errFail)
	}
	if n := c.Len(); n != 2 {
		t.Fatalf("c.Len:\nhave %d\nwant 2", n)
	}
	c.Purge()
	if n := c.Len(); n != 0 {
		t.Fatalf("c.Purge: Len\nhave %d\nwant 0", n)
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New[int](0, nil); err == nil {
		t.Fatal("New(0):\nhave nil\nwant error")
	}
}
