package capture

import (
	"testing"
	"time"
)

func TestFrameSlot(t *testing.T) {
	t.Parallel()

	s := newFrameSlot()
	if img, err := s.snapshot(2, 1); img != nil || err != nil {
		t.Fatalf("empty slot = %v, %v; want nil, nil", img, err)
	}
	if _, _, ok := s.waitFirst(time.Millisecond); ok {
		t.Fatal("waitFirst succeeded before any frame")
	}

	buf := []byte{1, 2, 3, 0, 4, 5, 6, 0}
	s.store(buf, 2, 1, 8, LayoutBGRX)
	buf[0] = 99 // the slot owns a copy

	if w, h, ok := s.waitFirst(time.Second); !ok || w != 2 || h != 1 {
		t.Fatalf("waitFirst = %d, %d, %v", w, h, ok)
	}
	for i := 0; i < 2; i++ {
		img, err := s.snapshot(2, 1)
		if err != nil || img == nil {
			t.Fatalf("snapshot %d = %v, %v", i, img, err)
		}
		if img.Pix[0] != 1 || img.Pix[5] != 6 {
			t.Errorf("snapshot %d Pix = %v", i, img.Pix)
		}
	}

	// A shrunken source is skipped rather than emitted at the wrong size.
	s.store([]byte{7, 8, 9}, 1, 1, 3, LayoutBGR)
	if img, err := s.snapshot(2, 1); img != nil || err != nil {
		t.Errorf("smaller frame = %v, %v; want nil, nil", img, err)
	}
}
