package pool

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func newTestDevice(t *testing.T) hal.Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	t.Cleanup(instance.Destroy)
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("noop backend enumerated zero adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(openDev.Device.Destroy)
	return openDev.Device
}

func TestTextureMatches(t *testing.T) {
	tex := &Texture{Width: 480, Height: 480, SampleCount: 4, Format: gputypes.TextureFormatBGRA8Unorm}

	if !tex.matches(480, 480, 4, gputypes.TextureFormatBGRA8Unorm) {
		t.Fatal("matches() = false for identical dimensions/format")
	}
	if tex.matches(480, 480, 1, gputypes.TextureFormatBGRA8Unorm) {
		t.Fatal("matches() = true with a different sample count")
	}
	if tex.matches(240, 480, 4, gputypes.TextureFormatBGRA8Unorm) {
		t.Fatal("matches() = true with a different width")
	}
	if tex.matches(480, 480, 4, gputypes.TextureFormatRGBA8Unorm) {
		t.Fatal("matches() = true with a different format")
	}
}

func TestTextureSampledViewFallsBackToColorWhenNoResolve(t *testing.T) {
	single := &Texture{SampleCount: 1}
	if single.SampledView() != single.ColorView {
		t.Fatal("SampledView() must return the color view when there's no resolve target")
	}
	if single.Resolve != nil {
		t.Fatal("single-sample texture should never carry a resolve target")
	}
}

func TestTexturePoolAcquireCreatesAndRecycleReuses(t *testing.T) {
	p := NewTexturePool(newTestDevice(t))
	defer p.Close()

	tex, err := p.Acquire(64, 64, 4, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if tex.Resolve == nil || tex.ResolveView == nil {
		t.Fatal("multisampled pool texture must carry a resolve target")
	}
	if p.Len() != 0 {
		t.Fatalf("Len() after Acquire = %d; want 0 (texture is checked out)", p.Len())
	}

	p.Recycle([]*Texture{tex})
	if p.Len() != 1 {
		t.Fatalf("Len() after Recycle = %d; want 1", p.Len())
	}

	again, err := p.Acquire(64, 64, 4, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	if again != tex {
		t.Fatal("Acquire with matching dimensions must reuse the recycled texture")
	}
	p.Recycle([]*Texture{again})
}

func TestTexturePoolAcquireMissOnDimensionChange(t *testing.T) {
	p := NewTexturePool(newTestDevice(t))
	defer p.Close()

	tex, err := p.Acquire(64, 64, 1, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if tex.Resolve != nil {
		t.Fatal("single-sample pool texture must not carry a resolve target")
	}
	p.Recycle([]*Texture{tex})

	other, err := p.Acquire(128, 64, 1, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("Acquire with different width: %v", err)
	}
	if other == tex {
		t.Fatal("Acquire must not hand back a texture of the wrong size")
	}
	p.Recycle([]*Texture{other})
}

func TestTexturePoolTrimDropsStaleConfigs(t *testing.T) {
	p := NewTexturePool(newTestDevice(t))
	defer p.Close()

	a, err := p.Acquire(32, 32, 1, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b, err := p.Acquire(64, 64, 1, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Recycle([]*Texture{a, b})

	p.Trim(64, 64, 1, gputypes.TextureFormatBGRA8Unorm)
	if p.Len() != 1 {
		t.Fatalf("Len() after Trim = %d; want 1 (only the matching config survives)", p.Len())
	}
}
