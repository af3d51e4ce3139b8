package render

import "testing"

func TestLeafBatcherMergesContiguousRun(t *testing.T) {
	var flushed []leafBatch
	b := newLeafBatcher(func(lb leafBatch) { flushed = append(flushed, lb) })

	for i := uint32(0); i < 5; i++ {
		b.Add(10, 6, i, 1, 0)
	}
	b.Flush()

	if len(flushed) != 1 {
		t.Fatalf("got %d flushed batches; want 1", len(flushed))
	}
	if flushed[0].instanceCount != 5 {
		t.Fatalf("instanceCount = %d; want 5", flushed[0].instanceCount)
	}
	if flushed[0].firstInstance != 0 {
		t.Fatalf("firstInstance = %d; want 0", flushed[0].firstInstance)
	}
}

func TestLeafBatcherBreaksOnGeometryMismatch(t *testing.T) {
	var flushed []leafBatch
	b := newLeafBatcher(func(lb leafBatch) { flushed = append(flushed, lb) })

	b.Add(10, 6, 0, 1, 0)
	b.Add(10, 6, 1, 1, 0)
	b.Add(20, 6, 2, 1, 0) // different index range breaks the run
	b.Flush()

	if len(flushed) != 2 {
		t.Fatalf("got %d flushed batches; want 2", len(flushed))
	}
	if flushed[0].instanceCount != 2 {
		t.Fatalf("first batch instanceCount = %d; want 2", flushed[0].instanceCount)
	}
	if flushed[1].instanceCount != 1 {
		t.Fatalf("second batch instanceCount = %d; want 1", flushed[1].instanceCount)
	}
}

func TestLeafBatcherBreaksOnTextureMismatch(t *testing.T) {
	var flushed []leafBatch
	b := newLeafBatcher(func(lb leafBatch) { flushed = append(flushed, lb) })

	b.Add(10, 6, 0, 1, 0)
	b.Add(10, 6, 1, 2, 0) // different background texture id
	b.Flush()

	if len(flushed) != 2 {
		t.Fatalf("got %d flushed batches; want 2", len(flushed))
	}
}

func TestLeafBatcherBreaksOnNonContiguousInstance(t *testing.T) {
	var flushed []leafBatch
	b := newLeafBatcher(func(lb leafBatch) { flushed = append(flushed, lb) })

	b.Add(10, 6, 0, 1, 0)
	b.Add(10, 6, 5, 1, 0) // skips instance indices 1-4
	b.Flush()

	if len(flushed) != 2 {
		t.Fatalf("got %d flushed batches; want 2 for a non-contiguous instance run", len(flushed))
	}
}

func TestLeafBatcherFlushOnEmptyIsNoOp(t *testing.T) {
	calls := 0
	b := newLeafBatcher(func(leafBatch) { calls++ })
	b.Flush()
	if calls != 0 {
		t.Fatalf("flush callback called %d times on an empty batcher; want 0", calls)
	}
}
