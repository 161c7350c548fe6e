package pool

import "testing"

func TestBytePoolSize(t *testing.T) {
	p := NewBytePool(64)
	buf := p.GetBuffer()
	if len(buf) != 64 {
		t.Fatalf("Expected buffer of 64 bytes, got %d", len(buf))
	}
	p.PutBuffer(buf[:3])
	again := p.GetBuffer()
	if len(again) != 64 {
		t.Errorf("Expected recycled buffer of 64 bytes, got %d", len(again))
	}
	// foreign sizes are dropped silently
	p.PutBuffer(make([]byte, 10))
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing[int](4)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}
	if r.Len() != 4 {
		t.Fatalf("Expected len 4, got %d", r.Len())
	}
	if r.Total() != 6 {
		t.Errorf("Expected total 6, got %d", r.Total())
	}
	want := []int{3, 4, 5, 6}
	for i, w := range want {
		got, ok := r.At(i)
		if !ok || got != w {
			t.Errorf("At(%d): expected %d, got %d (ok=%v)", i, w, got, ok)
		}
	}
	if last, _ := r.Last(); last != 6 {
		t.Errorf("Expected last 6, got %d", last)
	}
	if _, ok := r.At(4); ok {
		t.Error("Expected At(4) to be out of range")
	}
}

func TestRingEmpty(t *testing.T) {
	r := NewRing[string](2)
	if _, ok := r.Last(); ok {
		t.Error("Expected empty ring to have no last item")
	}
}

func TestNewRingPanicsOnBadSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for non power of two size")
		}
	}()
	NewRing[int](3)
}
