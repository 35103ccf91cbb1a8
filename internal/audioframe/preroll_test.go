package audioframe

import "testing"

func mkFrame(tag int16) Frame {
	return Frame{Samples: []int16{tag}, SampleRate: 16000}
}

func TestPreRollBufferBoundedOverflow(t *testing.T) {
	buf := NewPreRollBuffer(3)
	for i := int16(1); i <= 5; i++ {
		buf.Append(mkFrame(i))
	}
	got := buf.Frames()
	if len(got) != 3 {
		t.Fatalf("expected 3 frames retained, got %d", len(got))
	}
	want := []int16{3, 4, 5}
	for i, f := range got {
		if f.Samples[0] != want[i] {
			t.Errorf("frame %d: expected tag %d, got %d", i, want[i], f.Samples[0])
		}
	}
}

func TestPreRollBufferFlushClears(t *testing.T) {
	buf := NewPreRollBuffer(5)
	buf.Append(mkFrame(1))
	buf.Append(mkFrame(2))

	flushed := buf.Flush()
	if len(flushed) != 2 {
		t.Fatalf("expected 2 flushed frames, got %d", len(flushed))
	}
	if buf.Len() != 0 {
		t.Errorf("expected buffer cleared after flush, len=%d", buf.Len())
	}
}

func TestPreRollBufferOrderPreserved(t *testing.T) {
	// Property: for any N >= pre_roll_chunks observations, the retained
	// frames equal the last min(N, capacity) in observation order.
	buf := NewPreRollBuffer(10)
	for i := int16(0); i < 25; i++ {
		buf.Append(mkFrame(i))
	}
	got := buf.Flush()
	if len(got) != 10 {
		t.Fatalf("expected 10 frames, got %d", len(got))
	}
	for i, f := range got {
		want := int16(15 + i)
		if f.Samples[0] != want {
			t.Errorf("frame %d: expected %d, got %d", i, want, f.Samples[0])
		}
	}
}
