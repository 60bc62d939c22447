package reorder

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestBuffer_InOrder(t *testing.T) {
	b := New[string]()

	for i, v := range []string{"a", "b", "c"} {
		if err := b.Insert(i, v); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
		got := b.Drain()
		if len(got) != 1 || got[0] != v {
			t.Errorf("Drain() = %v, want [%s]", got, v)
		}
	}
	if b.Next() != 3 {
		t.Errorf("Next() = %d, want 3", b.Next())
	}
}

func TestBuffer_GapHoldsBack(t *testing.T) {
	b := New[int]()

	_ = b.Insert(2, 20)
	_ = b.Insert(1, 10)
	if got := b.Drain(); got != nil {
		t.Fatalf("Drain() = %v, want nil while index 0 is missing", got)
	}
	if b.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", b.Pending())
	}

	_ = b.Insert(0, 0)
	got := b.Drain()
	want := []int{0, 10, 20}
	if len(got) != len(want) {
		t.Fatalf("Drain() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Drain()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if b.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", b.Pending())
	}
}

func TestBuffer_InsertErrors(t *testing.T) {
	b := New[int]()

	if err := b.Insert(1, 1); err != nil {
		t.Fatal(err)
	}
	if err := b.Insert(1, 2); !errors.Is(err, ErrDuplicateIndex) {
		t.Errorf("duplicate Insert() error = %v, want ErrDuplicateIndex", err)
	}

	_ = b.Insert(0, 0)
	b.Drain()
	if err := b.Insert(0, 5); !errors.Is(err, ErrStaleIndex) {
		t.Errorf("stale Insert() error = %v, want ErrStaleIndex", err)
	}
}

func TestBuffer_RandomPermutation(t *testing.T) {
	const n = 500
	b := New[int]()

	var drained []int
	for _, idx := range rand.Perm(n) {
		if err := b.Insert(idx, idx); err != nil {
			t.Fatalf("Insert(%d) error = %v", idx, err)
		}
		drained = append(drained, b.Drain()...)
	}

	if len(drained) != n {
		t.Fatalf("drained %d values, want %d", len(drained), n)
	}
	for i, v := range drained {
		if v != i {
			t.Fatalf("drained[%d] = %d, out of order", i, v)
		}
	}
}
