package render

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stagegraph"
	"github.com/gogpu/stagegraph/drawtree"
	"github.com/gogpu/stagegraph/effect"
	"github.com/gogpu/stagegraph/internal/gpu"
	"github.com/gogpu/stagegraph/pool"
	"github.com/gogpu/stagegraph/tessellate"
	"github.com/gogpu/stagegraph/texture"
)

// PhysicalSize is a surface or offscreen target's size in physical
// (device) pixels, the unit every GPU-facing dimension in this package
// is expressed in. Host applications translate from their own logical/
// DPI-scaled coordinate space before calling New, Resize, or
// ChangeScaleFactor.
type PhysicalSize struct {
	Width, Height uint32
}

// surfacePresenter is an optional capability a DeviceHandle may satisfy
// to receive the resolved color view Render produces each frame. A host
// that owns a swapchain implements it to blit or present that view; one
// that doesn't leaves the frame sitting in the renderer's own target,
// readable through RenderToBuffer/RenderToARGB32. Detected the same way
// internal/gpu.ResolveHAL detects a halProvider: a plain type assertion
// against whatever value the host passed as its DeviceHandle.
type surfacePresenter interface {
	Present(view hal.TextureView) error
}

// Renderer is the public entry point for recording a scene graph and
// drawing it. It owns the frame-shared GPU pipelines and buffers, the
// draw tree and its supporting caches, and (for a headless renderer) the
// adapter/device it had to acquire for itself. Nothing about a Renderer
// is safe for concurrent use; callers drive it from a single goroutine
// per the host's own render loop, the same assumption the segmented
// renderer and aggregator make about their buffers.
type Renderer struct {
	deviceHandle DeviceHandle // nil for a headless renderer
	device       hal.Device
	queue        hal.Queue

	// headlessBackend is non-nil only when this Renderer was built by
	// TryNewHeadless; Destroy closes it once nothing else needs the
	// adapter it owns.
	headlessBackend *gpu.Backend
	headless        bool

	tree      *drawtree.Tree
	registry  *effect.Registry
	textures  *texture.Manager
	tessCache *tessellate.Cache

	scene     *gpu.ScenePipeline
	clip      *gpu.ClipPipelines
	composite *gpu.CompositePipeline
	swizzle   *gpu.SwizzlePipeline
	runner    *effectRunner
	texPool   *pool.TexturePool

	aggregator *aggregator
	target     *gpu.FrameTarget
	scratch    *drawtree.TraversalScratch

	uniformBuf       hal.Buffer
	uniformBindGroup hal.BindGroup
	placeholderGroup hal.BindGroup
	colorFormat      gputypes.TextureFormat

	// texBinds caches one texture-layer bind group per uploaded texture
	// id, built lazily the first frame a node samples that id and dropped
	// when the id is re-uploaded, removed, or evicted over the texture
	// manager's memory budget.
	texBinds map[texture.ID]hal.BindGroup

	width, height uint32
	scaleFactor   float64
	vsync         bool
	transparent   bool
	msaaSamples   int
	fringeWidth   float64
}

// New builds a Renderer that draws against a host-supplied GPU device.
// deviceHandle must resolve to a hal.Device/hal.Queue pair through
// internal/gpu.ResolveHAL (see render/device.go and
// internal/gpu/hal_provider.go); size is the surface's initial physical
// size. msaaSamples is clamped to the pipelines' fixed sample count, see
// SetMSAASamples.
func New(deviceHandle DeviceHandle, size PhysicalSize, scaleFactor float64, vsync, transparent bool, msaaSamples int) (*Renderer, error) {
	if deviceHandle == nil {
		return nil, fmt.Errorf("stagegraph: device handle must not be nil")
	}
	device, queue, ok := gpu.ResolveHAL(deviceHandle)
	if !ok {
		return nil, fmt.Errorf("stagegraph: device handle does not expose a hal.Device/hal.Queue pair")
	}
	r, err := buildRenderer(device, queue, size, scaleFactor, vsync, transparent, msaaSamples)
	if err != nil {
		return nil, err
	}
	r.deviceHandle = deviceHandle
	return r, nil
}

// NewTransparent is New with transparent fixed to true, for overlay and
// compositing use cases where the frame's own alpha channel must survive
// to whatever the host composites it over.
func NewTransparent(deviceHandle DeviceHandle, size PhysicalSize, scaleFactor float64, vsync bool, msaaSamples int) (*Renderer, error) {
	return New(deviceHandle, size, scaleFactor, vsync, true, msaaSamples)
}

// TryNewHeadless builds a Renderer that acquires its own adapter, device,
// and queue rather than receiving one from a host, for offscreen
// rendering in tests and tools that have no window. It is always
// transparent and never presents; draw with RenderToBuffer or
// RenderToARGB32, never Render.
//
// internal/gpu.Backend acquires its device through the Vulkan hal
// backend (hal.GetBackend/EnumerateAdapters/Adapter.Open), so it returns
// a genuine hal.Device/hal.Queue pair through Backend.HalDevice/HalQueue.
// TryNewHeadless returns *stagegraph.AdapterNotAvailableError only when
// no Vulkan-capable adapter is actually present on the host running it
// (typical in a CI container with no GPU); callers should treat that as
// "skip, no headless GPU path available here" rather than a transient
// failure to retry.
func TryNewHeadless(size PhysicalSize, scaleFactor float64) (*Renderer, error) {
	backend := gpu.NewBackend()
	if err := backend.Init(); err != nil {
		return nil, &stagegraph.AdapterNotAvailableError{Err: err}
	}
	device, queue, ok := gpu.ResolveHAL(backend)
	if !ok {
		backend.Close()
		return nil, &stagegraph.AdapterNotAvailableError{Err: gpu.ErrNoGPU}
	}
	r, err := buildRenderer(device, queue, size, scaleFactor, false, true, 1)
	if err != nil {
		backend.Close()
		return nil, err
	}
	r.headlessBackend = backend
	r.headless = true
	return r, nil
}

func buildRenderer(device hal.Device, queue hal.Queue, size PhysicalSize, scaleFactor float64, vsync, transparent bool, msaaSamples int) (*Renderer, error) {
	if size.Width == 0 || size.Height == 0 {
		return nil, fmt.Errorf("stagegraph: physical size must be non-zero, got %dx%d", size.Width, size.Height)
	}

	scene, err := gpu.NewScenePipeline(device)
	if err != nil {
		return nil, fmt.Errorf("stagegraph: create scene pipeline: %w", err)
	}
	clip, err := gpu.CreateClipPipelines(device, scene)
	if err != nil {
		scene.Destroy()
		return nil, fmt.Errorf("stagegraph: create clip pipelines: %w", err)
	}
	composite, err := gpu.NewCompositePipeline(device)
	if err != nil {
		clip.Destroy()
		scene.Destroy()
		return nil, fmt.Errorf("stagegraph: create composite pipeline: %w", err)
	}
	swizzle, err := gpu.NewSwizzlePipeline(device)
	if err != nil {
		composite.Destroy()
		clip.Destroy()
		scene.Destroy()
		return nil, fmt.Errorf("stagegraph: create swizzle pipeline: %w", err)
	}

	// Every pipeline in this package is compiled against plain BGRA8
	// Unorm; there is no distinct sRGB surface format in use anywhere in
	// the GPU layer for SetMSAASamples and Resize to need to track.
	colorFormat := gputypes.TextureFormatBGRA8Unorm

	texPool := pool.NewTexturePool(device)
	registry := effect.NewRegistry()
	runner, err := newEffectRunner(device, queue, registry, texPool, composite.InputLayout(), colorFormat)
	if err != nil {
		swizzle.Destroy()
		composite.Destroy()
		clip.Destroy()
		scene.Destroy()
		return nil, fmt.Errorf("stagegraph: create effect runner: %w", err)
	}

	uniformBuf, err := gpu.CreateBufferSimple(device, 16, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst, "stagegraph_viewport_uniform")
	if err != nil {
		return nil, fmt.Errorf("stagegraph: create viewport uniform buffer: %w", err)
	}
	uniformBindGroup, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "stagegraph_viewport_bind_group",
		Layout: scene.UniformLayout(),
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: uniformBuf.Raw().NativeHandle(), Offset: 0, Size: 16}},
		},
	})
	if err != nil {
		uniformBuf.Destroy()
		return nil, fmt.Errorf("stagegraph: create viewport bind group: %w", err)
	}
	// PlaceholderTextureBindGroup's layout is shared by group(1)
	// (background layer) and group(2) (foreground layer) in scene.wgsl, so one
	// bind group serves either slot for nodes that sample neither.
	placeholderGroup, err := scene.PlaceholderTextureBindGroup("stagegraph_placeholder_bind_group")
	if err != nil {
		return nil, fmt.Errorf("stagegraph: create placeholder bind group: %w", err)
	}

	textures, err := texture.NewManager(device, queue)
	if err != nil {
		return nil, fmt.Errorf("stagegraph: create texture manager: %w", err)
	}

	r := &Renderer{
		device: device, queue: queue,

		tree:      drawtree.New(),
		registry:  registry,
		textures:  textures,
		tessCache: tessellate.NewCache(0),

		scene: scene, clip: clip, composite: composite, swizzle: swizzle, runner: runner, texPool: texPool,

		aggregator: newAggregator(device, queue),
		target:     gpu.NewFrameTarget(device),
		scratch:    drawtree.NewTraversalScratch(),

		uniformBuf:       uniformBuf.Raw(),
		uniformBindGroup: uniformBindGroup,
		placeholderGroup: placeholderGroup,
		colorFormat:      colorFormat,
		texBinds:         make(map[texture.ID]hal.BindGroup),

		width: size.Width, height: size.Height,
		scaleFactor: scaleFactor,
		vsync:       vsync,
		transparent: transparent,
		msaaSamples: clampMSAASamples(msaaSamples),
		fringeWidth: 1.0,
	}
	// A budget eviction closes the texture behind any bind group cached
	// for that id; drop the cache entry with it.
	textures.OnEvict(r.dropTextureBind)
	return r, nil
}

func clampMSAASamples(requested int) int {
	switch {
	case requested <= 1:
		return 1
	case requested <= 4:
		return 4
	default:
		stagegraph.Logger().Warn("stagegraph: clamping unsupported MSAA sample count",
			"requested", requested, "clampedTo", 4)
		return 4
	}
}

// Resize updates the renderer's physical size. The next Render,
// RenderToBuffer, or RenderToARGB32 call lazily recreates the internal
// frame target (and any pooled offscreen textures group effects need)
// at the new dimensions; nothing is reallocated here.
func (r *Renderer) Resize(size PhysicalSize) {
	if size.Width == 0 || size.Height == 0 {
		return
	}
	r.width, r.height = size.Width, size.Height
	r.texPool.Trim(int(size.Width), int(size.Height), gpu.SampleCount(), r.colorFormat)
}

// ChangeScaleFactor records a new DPI scale factor, for hosts that want
// the renderer to track a display's scale without resizing the physical
// surface (e.g. a monitor change). It does not itself rescale anything
// the draw tree already holds; content authored in logical coordinates
// must be re-expressed by the caller.
func (r *Renderer) ChangeScaleFactor(scaleFactor float64) {
	r.scaleFactor = scaleFactor
}

// ScaleFactor returns the renderer's current DPI scale factor.
func (r *Renderer) ScaleFactor() float64 { return r.scaleFactor }

// SetMSAASamples requests a multisample count. Every pipeline this
// package builds is compiled once against internal/gpu.SampleCount's
// fixed value (see gpu.SampleCount's own doc comment) and is never
// recompiled per renderer, so requests are clamped to {1, 4}: anything
// above 4 falls back to 4 with a warning, and the stored value is
// advisory — group-effect offscreen targets always render at
// gpu.SampleCount(), independent of what SetMSAASamples last recorded.
func (r *Renderer) SetMSAASamples(samples int) {
	r.msaaSamples = clampMSAASamples(samples)
}

// MSAASamples returns the last value SetMSAASamples recorded (after
// clamping).
func (r *Renderer) MSAASamples() int { return r.msaaSamples }

// SetVSync records the renderer's vsync preference. stagegraph never
// owns a swapchain itself (see doc.go), so this is metadata a host's
// surfacePresenter implementation can consult; it has no effect on
// rendering.
func (r *Renderer) SetVSync(vsync bool) { r.vsync = vsync }

// VSync returns the renderer's current vsync preference.
func (r *Renderer) VSync() bool { return r.vsync }

// SetFringeWidth sets the screen-space width, in pixels, of the
// antialiasing fringe tessellate.Tessellate generates around filled
// edges. Takes effect for shapes tessellated after the call; it is not
// retroactive over already-cached geometry.
func (r *Renderer) SetFringeWidth(width float64) { r.fringeWidth = width }

// FringeWidth returns the current antialiasing fringe width.
func (r *Renderer) FringeWidth() float64 { return r.fringeWidth }

// Destroy releases every GPU resource this Renderer owns: its pipelines,
// buffers, bind groups, frame target, texture manager, and pooled
// offscreen textures. For a headless renderer it also closes the
// adapter TryNewHeadless acquired. The Renderer must not be used again
// afterward.
func (r *Renderer) Destroy() {
	r.runner.Destroy()
	r.swizzle.Destroy()
	r.composite.Destroy()
	r.clip.Destroy()
	r.scene.Destroy()
	r.aggregator.Destroy()
	r.texPool.Close()
	r.textures.Close()
	for id, bg := range r.texBinds {
		r.device.DestroyBindGroup(bg)
		delete(r.texBinds, id)
	}
	if r.uniformBindGroup != nil {
		r.device.DestroyBindGroup(r.uniformBindGroup)
	}
	if r.placeholderGroup != nil {
		r.device.DestroyBindGroup(r.placeholderGroup)
	}
	if r.uniformBuf != nil {
		r.device.DestroyBuffer(r.uniformBuf)
	}
	r.target.Destroy()
	for _, inst := range r.tree.GroupEffects {
		r.releaseEffectInstance(inst)
	}
	for _, inst := range r.tree.BackdropEffects {
		r.releaseEffectInstance(inst)
	}
	if r.headlessBackend != nil {
		r.headlessBackend.Close()
	}
}

// --- Draw-queue mutators: thin delegates onto drawtree.Tree, so callers
// never need to hold onto the Tree or the effect.Registry themselves. ---

// AddShape appends a new leaf node holding shape to the draw tree,
// clipped to clipToParent (drawtree.NoNode for none), and returns its
// stable id.
func (r *Renderer) AddShape(shape stagegraph.Shape, clipToParent drawtree.NodeID, tessellationKey *tessellate.CacheKey) drawtree.NodeID {
	return r.tree.AddShape(shape, clipToParent, tessellationKey)
}

// LoadShape eagerly tessellates shape at the renderer's current fringe
// width and stores it in the draw tree's shape cache under cacheKey, so
// that a later AddCachedShape for the same key never tessellates on the
// render path. If tessellationCacheKey is non-nil, the same geometry is
// also stored in the renderer's tessellation cache under that key, where
// an AddShape carrying that key finds it.
func (r *Renderer) LoadShape(shape stagegraph.Shape, cacheKey tessellate.CacheKey, tessellationCacheKey *tessellate.CacheKey) {
	r.tree.LoadShape(r.tessCache, shape, cacheKey, tessellationCacheKey, r.fringeWidth)
}

// AddCachedShape appends a node referencing a shape LoadShape already
// tessellated under cacheKey, skipping re-tessellation.
func (r *Renderer) AddCachedShape(cacheKey tessellate.CacheKey, clipToParent drawtree.NodeID) drawtree.NodeID {
	return r.tree.AddCachedShape(cacheKey, clipToParent)
}

// SetShapeTransform overrides a node's local transform.
func (r *Renderer) SetShapeTransform(id drawtree.NodeID, transform stagegraph.Transform) {
	r.tree.SetShapeTransform(id, transform)
}

// SetShapeColor overrides a node's fill color; nil clears the override
// and falls back to the shape's own color.
func (r *Renderer) SetShapeColor(id drawtree.NodeID, color *stagegraph.Color) {
	r.tree.SetShapeColor(id, color)
}

// SetShapeTexture sets (or clears, with nil) a node's background-layer
// texture, equivalent to SetShapeTextureOn(id, drawtree.LayerBackground, textureID).
func (r *Renderer) SetShapeTexture(id drawtree.NodeID, textureID *texture.ID) {
	r.tree.SetShapeTexture(id, textureID)
}

// SetShapeTextureOn sets (or clears, with nil) one of a node's two
// texture layer slots.
func (r *Renderer) SetShapeTextureOn(id drawtree.NodeID, layer drawtree.TextureLayer, textureID *texture.ID) {
	r.tree.SetShapeTextureOn(id, layer, textureID)
}

// SetShapeNonClipping marks whether a node's geometry participates as a
// clip mask for its descendants.
func (r *Renderer) SetShapeNonClipping(id drawtree.NodeID, nonClipping bool) {
	r.tree.SetShapeNonClipping(id, nonClipping)
}

// ClearDrawQueue removes every node, group effect, and backdrop effect
// from the draw tree, returning it to empty. Effect instances' GPU
// params (uniform buffer + bind group) are destroyed here, since the
// tree itself holds no device to destroy them with.
func (r *Renderer) ClearDrawQueue() {
	for _, inst := range r.tree.GroupEffects {
		r.releaseEffectInstance(inst)
	}
	for _, inst := range r.tree.BackdropEffects {
		r.releaseEffectInstance(inst)
	}
	r.tree.ClearDrawQueue()
}

// releaseEffectInstance destroys an effect instance's GPU params. The
// bind group needs the renderer's device to destroy, so this happens
// here rather than in Instance.Release (which owns no device), the same
// destroy-then-Release sequence the effect runner's params rebuild uses.
func (r *Renderer) releaseEffectInstance(inst *effect.Instance) {
	if inst == nil {
		return
	}
	if bg, ok := inst.BindGroup().(hal.BindGroup); ok {
		r.device.DestroyBindGroup(bg)
	}
	inst.Release()
}

// LoadEffect compiles and validates fragmentSources as a chained
// multi-pass effect stored under effectID (chosen by the caller,
// replacing any effect previously loaded there), which SetGroupEffect
// and SetBackdropEffect then reference.
func (r *Renderer) LoadEffect(effectID effect.ID, fragmentSources ...string) error {
	return r.registry.Load(effectID, fragmentSources...)
}

// SetGroupEffect attaches effectID (with its initial params) to node,
// isolating node's subtree into an offscreen pass the effect runs over
// before it is composited back into the frame. Replacing an attached
// effect destroys the old instance's GPU params.
func (r *Renderer) SetGroupEffect(id drawtree.NodeID, effectID effect.ID, params []byte) error {
	old := r.tree.GroupEffects[id]
	if err := r.tree.SetGroupEffect(r.registry, id, effectID, params); err != nil {
		return err
	}
	r.releaseEffectInstance(old)
	return nil
}

// SetBackdropEffect attaches effectID (with its initial params) to node
// as a backdrop filter: the effect samples whatever has already been
// drawn behind node rather than node's own subtree. Replacing an
// attached effect destroys the old instance's GPU params.
func (r *Renderer) SetBackdropEffect(id drawtree.NodeID, effectID effect.ID, params []byte) error {
	old := r.tree.BackdropEffects[id]
	if err := r.tree.SetBackdropEffect(r.registry, id, effectID, params); err != nil {
		return err
	}
	r.releaseEffectInstance(old)
	return nil
}

// UpdateGroupEffectParams replaces the parameter bytes of a node's
// already-attached group effect.
func (r *Renderer) UpdateGroupEffectParams(id drawtree.NodeID, params []byte) error {
	return r.tree.UpdateGroupEffectParams(r.registry, id, params)
}

// UpdateBackdropEffectParams replaces the parameter bytes of a node's
// already-attached backdrop effect.
func (r *Renderer) UpdateBackdropEffectParams(id drawtree.NodeID, params []byte) error {
	return r.tree.UpdateBackdropEffectParams(r.registry, id, params)
}

// UploadTexture uploads (or re-uploads) the full contents of a texture
// id from tightly-packed RGBA8 pixels. A re-upload replaces the GPU
// texture, so any cached bind group for id is dropped.
func (r *Renderer) UploadTexture(id texture.ID, width, height int, rgba8 []byte) error {
	if err := r.textures.Upload(id, width, height, rgba8); err != nil {
		return err
	}
	r.dropTextureBind(id)
	return nil
}

// UploadTextureRegion uploads a sub-rectangle of an already-uploaded
// texture id.
func (r *Renderer) UploadTextureRegion(id texture.ID, x, y, w, h int, rgba8 []byte) error {
	return r.textures.UploadRegion(id, x, y, w, h, rgba8)
}

// Textures returns the renderer's texture manager, shared with the
// client so texture data can be uploaded outside render. The manager is
// internally synchronized; everything else on the Renderer is not.
func (r *Renderer) Textures() *texture.Manager { return r.textures }

// RemoveTexture releases a texture id's GPU storage.
func (r *Renderer) RemoveTexture(id texture.ID) {
	r.textures.Remove(id)
	r.dropTextureBind(id)
}

// dropTextureBind invalidates the cached texture-layer bind group for
// id, if one was built.
func (r *Renderer) dropTextureBind(id texture.ID) {
	if bg, ok := r.texBinds[id]; ok {
		r.device.DestroyBindGroup(bg)
		delete(r.texBinds, id)
	}
}

// textureBindGroup resolves a node's texture id to the bind group a
// scene-layout draw binds at the texture-layer slots. Id 0 (unset) binds
// the shared transparent placeholder; an id with no uploaded texture
// logs and falls back to the placeholder rather than failing the frame.
func (r *Renderer) textureBindGroup(rawID uint64) hal.BindGroup {
	id := texture.ID(rawID)
	if id == 0 {
		return r.placeholderGroup
	}
	if bg, ok := r.texBinds[id]; ok {
		return bg
	}
	tex, ok := r.textures.Lookup(id)
	if !ok || tex.View() == nil {
		stagegraph.Logger().Warn("stagegraph: texture id has no uploaded texture, using transparent fallback",
			"texture", rawID)
		return r.placeholderGroup
	}
	bg, err := r.scene.TextureBindGroup(fmt.Sprintf("stagegraph_texture_%d", rawID), tex.View())
	if err != nil {
		stagegraph.Logger().Warn("stagegraph: creating texture bind group failed, using transparent fallback",
			"texture", rawID, "error", err)
		return r.placeholderGroup
	}
	r.texBinds[id] = bg
	return bg
}

// --- Per-frame rendering. ---

// Render draws the current draw tree to the renderer's own frame target
// and, if the DeviceHandle passed to New/NewTransparent implements
// surfacePresenter, hands the resolved color view to it for
// presentation. It panics if called on a renderer built by
// TryNewHeadless — a headless renderer has nothing to present to; use
// RenderToBuffer or RenderToARGB32 instead.
func (r *Renderer) Render() error {
	if r.headless {
		panic("stagegraph: Render called on a headless renderer; use RenderToBuffer or RenderToARGB32")
	}
	if err := r.drawFrame(); err != nil {
		return &stagegraph.SurfaceError{Kind: stagegraph.SurfaceOther, Err: err}
	}
	if presenter, ok := r.deviceHandle.(surfacePresenter); ok {
		if err := presenter.Present(r.target.ResolveView()); err != nil {
			return &stagegraph.SurfaceError{Kind: stagegraph.SurfaceOther, Err: err}
		}
	}
	return nil
}

// RenderToBuffer draws the current draw tree and copies the result into
// *buf as tightly-packed BGRA8 rows (the GPU's own color format; no
// channel reordering), growing or shrinking *buf to exactly width*height*4
// bytes.
func (r *Renderer) RenderToBuffer(buf *[]byte) error {
	if err := r.drawFrame(); err != nil {
		return err
	}
	raw, err := r.readback()
	if err != nil {
		return err
	}
	*buf = raw
	return nil
}

// RenderToARGB32 draws the current draw tree and writes the result into
// buf as one packed 0xAARRGGBB value per pixel, row-major. len(buf) must
// be at least width*height. The BGRA8-to-ARGB32
// conversion itself runs as a single internal/gpu.SwizzlePipeline compute
// dispatch, not a per-pixel CPU loop; only the already-packed output
// comes back across the readback boundary.
func (r *Renderer) RenderToARGB32(buf []uint32) error {
	if err := r.drawFrame(); err != nil {
		return err
	}
	n := int(r.width) * int(r.height)
	if len(buf) < n {
		return fmt.Errorf("stagegraph: argb32 buffer too small: need %d pixels, have %d", n, len(buf))
	}
	packed, err := r.readbackARGB32()
	if err != nil {
		return err
	}
	copy(buf[:n], packed)
	return nil
}

// drawFrame runs the full per-frame pipeline shared by Render,
// RenderToBuffer, and RenderToARGB32: resize the owned frame target,
// rebuild the aggregated geometry/instance buffers, resolve every group
// effect (deepest subtree first), plan and render the main traversal
// through the segmented clip engine, submit, wait, and recycle
// per-frame pool textures.
func (r *Renderer) drawFrame() error {
	if err := r.target.EnsureSize(r.width, r.height, "stagegraph_frame"); err != nil {
		return fmt.Errorf("ensure frame target: %w", err)
	}
	if err := r.uploadViewportUniform(); err != nil {
		return fmt.Errorf("upload viewport uniform: %w", err)
	}
	if err := r.aggregator.Prepare(r.tree, r.tessCache, r.fringeWidth); err != nil {
		return fmt.Errorf("prepare frame geometry: %w", err)
	}

	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "stagegraph_frame_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("stagegraph_frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	fg := r.frameGPU()
	var retired []hal.BindGroup
	fg.retire = func(bg hal.BindGroup) { retired = append(retired, bg) }
	ctx := &backdropContext{}
	var recycle []*pool.Texture
	backdropFn := newBackdropHandler(fg, r.tree, ctx, &recycle)

	// On a mid-encode failure the encoder is discarded, so nothing ever
	// samples this frame's snapshots or pool textures; they can be
	// reclaimed immediately.
	abandonFrame := func() {
		for _, bg := range retired {
			r.device.DestroyBindGroup(bg)
		}
		ctx.releaseSnapshots(r.device)
		r.texPool.Recycle(recycle)
		r.tree.ClearResolved()
	}

	resultViews, effectRecycle, err := processGroupEffects(encoder, fg, r.tree, backdropFn, ctx)
	recycle = append(recycle, effectRecycle...)
	if err != nil {
		encoder.DiscardEncoding()
		abandonFrame()
		return fmt.Errorf("process group effects: %w", err)
	}

	drawtree.Plan(r.tree, resultSet(resultViews), drawtree.NoNode, drawtree.NoNode, r.scratch)

	ctl := fg.newSegmentController()
	clear := gputypes.Color{}
	if !r.transparent {
		clear = gputypes.Color{R: 0, G: 0, B: 0, A: 1}
	}
	if err := ctl.renderSegments(encoder, r.target, r.tree, r.scratch.Events(), resultViews, backdropFn, clear); err != nil {
		encoder.DiscardEncoding()
		abandonFrame()
		return fmt.Errorf("render segments: %w", err)
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer r.device.FreeCommandBuffer(cmdBuf)

	fence, err := r.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer r.device.DestroyFence(fence)

	if err := r.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit frame: %w", err)
	}
	ok, err := r.device.Wait(fence, 1, 5*time.Second)
	if err != nil || !ok {
		return fmt.Errorf("wait for frame: ok=%v err=%w", ok, err)
	}

	for _, bg := range retired {
		r.device.DestroyBindGroup(bg)
	}
	ctx.releaseSnapshots(r.device)
	r.texPool.Recycle(recycle)
	r.tree.ClearResolved()
	r.scratch.TrimToPolicy()

	return nil
}

// frameGPU bundles the renderer's per-frame-shared GPU resources into
// the struct processGroupEffects, newBackdropHandler, and
// newSegmentController all expect.
func (r *Renderer) frameGPU() *frameGPU {
	return &frameGPU{
		device: r.device, queue: r.queue,
		scene: r.scene, clip: r.clip, composite: r.composite,
		runner: r.runner, texPool: r.texPool,
		uniformBindGroup: r.uniformBindGroup,
		vertexBuf: r.aggregator.VertexBuffer(), indexBuf: r.aggregator.IndexBuffer(), instBuf: r.aggregator.InstanceBuffer(),
		texBind: r.textureBindGroup,
		colorFormat: r.colorFormat,
		width:       r.width, height: r.height,
	}
}

// resultSet reduces a node-id -> result-view map to the node-id set
// drawtree.Plan's effectResults parameter expects, without keeping two
// parallel collections of the same keys in sync across a frame.
func resultSet(views map[drawtree.NodeID]hal.TextureView) map[drawtree.NodeID]struct{} {
	if len(views) == 0 {
		return nil
	}
	set := make(map[drawtree.NodeID]struct{}, len(views))
	for id := range views {
		set[id] = struct{}{}
	}
	return set
}

// uploadViewportUniform writes the current physical size into the
// group(0) viewport uniform the scene and clip pipelines share
// (scene.wgsl's SceneUniform: vec2 viewport + vec2 padding).
func (r *Renderer) uploadViewportUniform() error {
	var data [16]byte
	binary.LittleEndian.PutUint32(data[0:4], math.Float32bits(float32(r.width)))
	binary.LittleEndian.PutUint32(data[4:8], math.Float32bits(float32(r.height)))
	return r.queue.WriteBuffer(r.uniformBuf, 0, data[:])
}

// copyBytesPerRowAlignment is the row-pitch alignment every GPU backend
// imposes on a texture-to-buffer copy (WebGPU's
// COPY_BYTES_PER_ROW_ALIGNMENT): BufferLayout.BytesPerRow must be a
// multiple of this value, so a render target whose tightly-packed row
// doesn't already land on a multiple of it needs its copy padded out
// and then stripped back down on the CPU side.
const copyBytesPerRowAlignment = 256

// computePaddedBytesPerRow rounds unpadded (a tightly-packed row size in
// bytes) up to copyBytesPerRowAlignment.
func computePaddedBytesPerRow(unpadded uint32) uint32 {
	const align = copyBytesPerRowAlignment
	return (unpadded + align - 1) / align * align
}

// transitionResolveTexture records a usage-transition barrier on the
// frame target's resolve texture, used on both sides of a
// texture-to-buffer readback copy.
func (r *Renderer) transitionResolveTexture(encoder hal.CommandEncoder, resolveTex hal.Texture, oldUsage, newUsage gputypes.TextureUsage) {
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: resolveTex,
		Usage:   hal.TextureUsageTransition{OldUsage: oldUsage, NewUsage: newUsage},
	}})
}

// submitAndWait submits cmdBuf alone and blocks until the GPU signals
// its fence, the same submit/fence/wait sequence drawFrame uses for the
// main render pass.
func (r *Renderer) submitAndWait(cmdBuf hal.CommandBuffer, what string) error {
	defer r.device.FreeCommandBuffer(cmdBuf)

	fence, err := r.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create %s fence: %w", what, err)
	}
	defer r.device.DestroyFence(fence)

	if err := r.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit %s: %w", what, err)
	}
	ok, err := r.device.Wait(fence, 1, 5*time.Second)
	if err != nil || !ok {
		return fmt.Errorf("wait for %s: ok=%v err=%w", what, ok, err)
	}
	return nil
}

// readback copies the owned frame target's resolved color texture into
// a freshly allocated tightly-packed BGRA8 byte slice via a usage
// barrier, a texture-to-buffer copy into a staging buffer, and a fenced
// wait. The GPU copy itself writes driver-padded rows (see
// computePaddedBytesPerRow); this unpads them back into a
// tightly-packed result before returning.
func (r *Renderer) readback() ([]byte, error) {
	unpaddedBPR := r.width * 4
	paddedBPR := computePaddedBytesPerRow(unpaddedBPR)

	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "stagegraph_readback_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create readback encoder: %w", err)
	}
	if err := encoder.BeginEncoding("stagegraph_readback"); err != nil {
		return nil, fmt.Errorf("begin readback encoding: %w", err)
	}

	resolveTex := r.target.ResolveTexture()
	r.transitionResolveTexture(encoder, resolveTex, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageCopySrc)

	staging, err := gpu.CreateStagingBuffer(r.device, uint64(paddedBPR)*uint64(r.height), false, "stagegraph_readback_staging")
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("create readback staging buffer: %w", err)
	}
	defer staging.Destroy()

	encoder.CopyTextureToBuffer(resolveTex, staging.Raw(), []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: paddedBPR, RowsPerImage: r.height},
		TextureBase:  hal.ImageCopyTexture{Texture: resolveTex, MipLevel: 0},
		Size:         hal.Extent3D{Width: r.width, Height: r.height, DepthOrArrayLayers: 1},
	}})

	// Restore RenderAttachment usage so next frame's pass can target
	// this same resolve texture again.
	r.transitionResolveTexture(encoder, resolveTex, gputypes.TextureUsageCopySrc, gputypes.TextureUsageRenderAttachment)

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end readback encoding: %w", err)
	}
	if err := r.submitAndWait(cmdBuf, "readback"); err != nil {
		return nil, err
	}

	padded := make([]byte, uint64(paddedBPR)*uint64(r.height))
	if err := r.queue.ReadBuffer(staging.Raw(), 0, padded); err != nil {
		return nil, fmt.Errorf("read back frame: %w", err)
	}
	if paddedBPR == unpaddedBPR {
		return padded, nil
	}
	raw := make([]byte, uint64(unpaddedBPR)*uint64(r.height))
	for row := uint32(0); row < r.height; row++ {
		srcOff, dstOff := row*paddedBPR, row*unpaddedBPR
		copy(raw[dstOff:dstOff+unpaddedBPR], padded[srcOff:srcOff+unpaddedBPR])
	}
	return raw, nil
}

// readbackARGB32 copies the resolved frame into a padded BGRA8 storage
// buffer, runs internal/gpu.SwizzlePipeline over it as a single compute
// dispatch to produce tightly-packed 0xAARRGGBB words, and reads back
// only that packed output, so the format conversion itself costs one
// GPU dispatch rather than a CPU pass over every pixel.
func (r *Renderer) readbackARGB32() ([]uint32, error) {
	unpaddedBPR := r.width * 4
	paddedBPR := computePaddedBytesPerRow(unpaddedBPR)
	srcSize := uint64(paddedBPR) * uint64(r.height)
	dstSize := uint64(r.width) * uint64(r.height) * 4

	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "stagegraph_argb32_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create argb32 encoder: %w", err)
	}
	if err := encoder.BeginEncoding("stagegraph_argb32"); err != nil {
		return nil, fmt.Errorf("begin argb32 encoding: %w", err)
	}

	resolveTex := r.target.ResolveTexture()
	r.transitionResolveTexture(encoder, resolveTex, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageCopySrc)

	srcBuf, err := gpu.CreateBufferSimple(r.device, srcSize, gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst, "stagegraph_argb32_src")
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("create argb32 source buffer: %w", err)
	}
	defer srcBuf.Destroy()

	encoder.CopyTextureToBuffer(resolveTex, srcBuf.Raw(), []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: paddedBPR, RowsPerImage: r.height},
		TextureBase:  hal.ImageCopyTexture{Texture: resolveTex, MipLevel: 0},
		Size:         hal.Extent3D{Width: r.width, Height: r.height, DepthOrArrayLayers: 1},
	}})
	r.transitionResolveTexture(encoder, resolveTex, gputypes.TextureUsageCopySrc, gputypes.TextureUsageRenderAttachment)

	dstBuf, err := gpu.CreateBufferSimple(r.device, dstSize, gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc, "stagegraph_argb32_dst")
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("create argb32 dest buffer: %w", err)
	}
	defer dstBuf.Destroy()

	paramsBuf, err := gpu.CreateBufferSimple(r.device, 16, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst, "stagegraph_argb32_params")
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("create argb32 params buffer: %w", err)
	}
	defer paramsBuf.Destroy()

	params := gpu.SwizzleParams{Width: r.width, Height: r.height, SrcStrideWords: paddedBPR / 4}
	if err := r.queue.WriteBuffer(paramsBuf.Raw(), 0, gpu.StructSliceToBytes([]gpu.SwizzleParams{params})); err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("write argb32 params: %w", err)
	}

	swizzleBG, err := r.swizzle.Dispatch(encoder, r.width, r.height, paramsBuf.Raw(), srcBuf.Raw(), dstBuf.Raw(), 16, srcSize, dstSize)
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("dispatch argb32 swizzle: %w", err)
	}
	defer r.device.DestroyBindGroup(swizzleBG)

	staging, err := gpu.CreateStagingBuffer(r.device, dstSize, false, "stagegraph_argb32_staging")
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("create argb32 staging buffer: %w", err)
	}
	defer staging.Destroy()

	encoder.CopyBufferToBuffer(dstBuf.Raw(), staging.Raw(), []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: dstSize}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end argb32 encoding: %w", err)
	}
	if err := r.submitAndWait(cmdBuf, "argb32 readback"); err != nil {
		return nil, err
	}

	raw := make([]byte, dstSize)
	if err := r.queue.ReadBuffer(staging.Raw(), 0, raw); err != nil {
		return nil, fmt.Errorf("read back argb32: %w", err)
	}
	out := make([]uint32, r.width*r.height)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out, nil
}
