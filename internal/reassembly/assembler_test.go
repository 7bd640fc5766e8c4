package reassembly

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestNewRejectsBadAlignment(t *testing.T) {
	if _, err := New(0, nil); err == nil {
		t.Error("New(0, nil) = nil error, want failure")
	}
	if _, err := New(-1, nil); err == nil {
		t.Error("New(-1, nil) = nil error, want failure")
	}
}

func TestNewRejectsNegativeLength(t *testing.T) {
	if _, err := New(3, intPtr(-1)); err == nil {
		t.Error("New(3, -1) = nil error, want failure")
	}
}

func TestAddRejectsMisalignedOffset(t *testing.T) {
	a, _ := New(3, nil)
	if err := a.Add([]byte{1, 2, 3}, 1); err == nil {
		t.Error("Add at misaligned offset = nil error, want failure")
	}
	if err := a.Add([]byte{1, 2, 3}, -3); err == nil {
		t.Error("Add at negative offset = nil error, want failure")
	}
}

func TestAddRejectsOverlongChunk(t *testing.T) {
	a, _ := New(3, nil)
	if err := a.Add([]byte{1, 2, 3, 4}, 0); err == nil {
		t.Error("Add with length > alignment = nil error, want failure")
	}
}

func TestAddChunkPastKnownEnd(t *testing.T) {
	a, err := New(3, intPtr(6))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Add([]byte{1, 2, 3}, 6); err == nil {
		t.Error("Add at offset == length = nil error, want *ChunkPastEndError")
	} else if _, ok := err.(*ChunkPastEndError); !ok {
		t.Errorf("Add at offset == length = %T, want *ChunkPastEndError", err)
	}
}

func TestAddIdempotentAndCollision(t *testing.T) {
	a, _ := New(3, nil)
	if err := a.Add([]byte{1, 2, 3}, 0); err != nil {
		t.Fatal(err)
	}
	if err := a.Add([]byte{1, 2, 3}, 0); err != nil {
		t.Errorf("re-adding identical bytes = %v, want no-op", err)
	}
	err := a.Add([]byte{9, 9, 9}, 0)
	if err == nil {
		t.Fatal("re-adding differing bytes = nil error, want *ChunkCollisionError")
	}
	if _, ok := err.(*ChunkCollisionError); !ok {
		t.Errorf("re-adding differing bytes = %T, want *ChunkCollisionError", err)
	}
}

func TestCollisionWithOverlongChunkIsValueError(t *testing.T) {
	a, _ := New(3, nil)
	if err := a.Add([]byte{1, 2, 3}, 0); err != nil {
		t.Fatal(err)
	}
	// An already-filled slot whose incoming chunk itself violates the
	// length contract must fail as a plain structural error, not a
	// ChunkCollisionError.
	err := a.Add([]byte{1, 2, 3, 4}, 0)
	if err == nil {
		t.Fatal("Add with overlong chunk at filled slot = nil error, want failure")
	}
	if _, ok := err.(*ChunkCollisionError); ok {
		t.Errorf("Add with overlong chunk at filled slot = *ChunkCollisionError, want plain error")
	}
}

func TestLengthDeductionFromShortFinalChunk(t *testing.T) {
	a, _ := New(3, nil)
	if err := a.Add([]byte{1, 2, 3}, 0); err != nil {
		t.Fatal(err)
	}
	if err := a.Add([]byte{4, 5}, 3); err != nil {
		t.Fatal(err)
	}
	length, known := a.Length()
	if !known || length != 5 {
		t.Fatalf("Length() = (%d,%v), want (5,true)", length, known)
	}
	if !a.Complete() {
		t.Fatal("Complete() = false after all slots filled")
	}
	got, err := a.GetBytes(false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("GetBytes() = %v, want [1 2 3 4 5]", got)
	}
}

func TestSetLengthOneWay(t *testing.T) {
	a, _ := New(3, nil)
	if err := a.SetLength(9); err != nil {
		t.Fatal(err)
	}
	if err := a.SetLength(9); err != nil {
		t.Errorf("re-setting identical length = %v, want no-op", err)
	}
	if err := a.SetLength(12); err == nil {
		t.Error("re-setting to a different length = nil error, want failure")
	}
}

func TestGetBytesIncomplete(t *testing.T) {
	a, _ := New(3, intPtr(9))
	if _, err := a.GetBytes(false); err == nil {
		t.Fatal("GetBytes(false) on empty assembler = nil error, want *IncompleteDataError")
	} else if _, ok := err.(*IncompleteDataError); !ok {
		t.Errorf("GetBytes(false) = %T, want *IncompleteDataError", err)
	}

	if err := a.Add([]byte{1, 2, 3}, 0); err != nil {
		t.Fatal(err)
	}
	got, err := a.GetBytes(true)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("GetBytes(true) = %v, want %v", got, want)
	}
}

// TestAssemblerCommutativity mirrors the permutation-based property test:
// feeding the same set of non-overlapping aligned chunks in several
// different orders must produce the same final bytes.
func TestAssemblerCommutativity(t *testing.T) {
	sizesAndAlignments := []struct{ size, alignment int }{
		{3, 1}, {9, 2}, {9, 3}, {10, 3}, {11, 3}, {11, 4},
	}

	for _, sa := range sizesAndAlignments {
		data := make([]byte, sa.size)
		if _, err := rand.Read(data); err != nil {
			t.Fatal(err)
		}

		type chunk struct {
			bytes  []byte
			offset int
		}
		var chunks []chunk
		for offset := 0; offset < sa.size; offset += sa.alignment {
			end := offset + sa.alignment
			if end > sa.size {
				end = sa.size
			}
			chunks = append(chunks, chunk{bytes: data[offset:end], offset: offset})
		}

		for perm := 0; perm < 5; perm++ {
			shuffled := append([]chunk(nil), chunks...)
			for i := len(shuffled) - 1; i > 0; i-- {
				j := int(data[(i+perm)%len(data)]) % (i + 1)
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			}

			// A known length is supplied so the exact-multiple cases
			// (size % alignment == 0) complete deterministically too:
			// length deduction alone only pins N from a short final
			// chunk, which never arrives when size is a multiple of
			// alignment.
			a, err := New(sa.alignment, intPtr(sa.size))
			if err != nil {
				t.Fatal(err)
			}
			for _, c := range shuffled {
				if err := a.Add(c.bytes, c.offset); err != nil {
					t.Fatalf("size=%d alignment=%d: Add(%v,%d) returned %v", sa.size, sa.alignment, c.bytes, c.offset, err)
				}
			}
			if !a.Complete() {
				t.Fatalf("size=%d alignment=%d: assembler not complete after all chunks added", sa.size, sa.alignment)
			}
			got, err := a.GetBytes(false)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("size=%d alignment=%d: GetBytes() = %v, want %v", sa.size, sa.alignment, got, data)
			}
		}
	}
}
