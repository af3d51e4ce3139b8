package render

import "github.com/gogpu/wgpu/hal"

// leafBatch accumulates a run of consecutive leaf draws that share the
// same geometry range and texture bindings into a single instanced
// DrawIndexed call. Nodes visited back to back by the segmented
// renderer's traversal commonly share geometry (repeated icons, grid
// cells, list rows built from one cached shape), and aggregator.Prepare
// assigns their instance-buffer slots in the same order it visits them,
// so a run of such nodes ends up with contiguous instance indices —
// exactly what an instanced draw's firstInstance/instanceCount needs.
type leafBatch struct {
	indexStart, indexCount uint32
	background, foreground uint64
	firstInstance          uint32
	instanceCount          uint32
}

// leafBatcher is the streaming accumulator the segmented renderer feeds
// one resolved leaf at a time, in traversal order. It never reorders
// draws: a leaf that breaks the run (different geometry, different
// texture, or a non-contiguous instance index) flushes the pending batch
// first.
type leafBatcher struct {
	pending    leafBatch
	hasPending bool
	flush      func(leafBatch)
}

// newLeafBatcher creates a batcher that calls flush for each completed
// batch. flush is called synchronously from Add/Flush, never retained.
func newLeafBatcher(flush func(leafBatch)) *leafBatcher {
	return &leafBatcher{flush: flush}
}

// Add offers one resolved leaf's draw parameters to the batcher. It
// either extends the pending batch (same geometry/texture, instance
// index immediately following the batch's last) or flushes the pending
// batch and starts a new one.
func (b *leafBatcher) Add(indexStart, indexCount, instanceIdx uint32, background, foreground uint64) {
	if b.hasPending {
		p := &b.pending
		sameGeometry := p.indexStart == indexStart && p.indexCount == indexCount
		sameTexture := p.background == background && p.foreground == foreground
		contiguous := instanceIdx == p.firstInstance+p.instanceCount
		if sameGeometry && sameTexture && contiguous {
			p.instanceCount++
			return
		}
		b.Flush()
	}
	b.pending = leafBatch{
		indexStart: indexStart, indexCount: indexCount,
		background: background, foreground: foreground,
		firstInstance: instanceIdx, instanceCount: 1,
	}
	b.hasPending = true
}

// Flush emits the pending batch, if any, and clears it.
func (b *leafBatcher) Flush() {
	if !b.hasPending {
		return
	}
	b.flush(b.pending)
	b.hasPending = false
	b.pending = leafBatch{}
}

// drawBatch issues one instanced indexed draw call for batch against an
// already-configured render pass (pipeline, bind groups, vertex/index
// buffers all bound by the caller).
func drawBatch(rp hal.RenderPassEncoder, batch leafBatch) {
	if batch.indexCount == 0 || batch.instanceCount == 0 {
		return
	}
	rp.DrawIndexed(batch.indexCount, batch.instanceCount, batch.indexStart, 0, batch.firstInstance)
}
