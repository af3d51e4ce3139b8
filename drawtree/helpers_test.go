package drawtree

import (
	"testing"

	"github.com/gogpu/stagegraph/effect"
	"github.com/gogpu/stagegraph/tessellate"
)

// newTestRegistry creates an effect registry for tests that need an
// effect id to attach but don't exercise pass compilation itself.
func newTestRegistry(t *testing.T) *effect.Registry {
	t.Helper()
	return effect.NewRegistry()
}

// loadTestEffect loads a trivial passthrough fragment effect under a
// fixed id, returning it.
func loadTestEffect(t *testing.T, registry *effect.Registry) effect.ID {
	t.Helper()
	const id = effect.ID(1)
	err := registry.Load(id, `
@fragment
fn effect_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
	return textureSample(t_input, s_input, uv);
}
`)
	if err != nil {
		t.Fatalf("Load effect: %v", err)
	}
	return id
}

// loadTestParamsEffect loads a fragment effect that reads the @group(1)
// params uniform, under a fixed id distinct from loadTestEffect's.
func loadTestParamsEffect(t *testing.T, registry *effect.Registry) effect.ID {
	t.Helper()
	const id = effect.ID(2)
	err := registry.Load(id, `
@fragment
fn effect_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
	let c = textureSample(t_input, s_input, uv);
	return vec4<f32>(c.rgb, c.a * params.data.x);
}
`)
	if err != nil {
		t.Fatalf("Load params effect: %v", err)
	}
	return id
}

func newTessCacheForTest() *tessellate.Cache {
	return tessellate.NewCache(0)
}

func cacheKeyForTest(v uint64) tessellate.CacheKey {
	return tessellate.CacheKey(v)
}
