//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// compositeShaderSource is the fullscreen-triangle vertex stage and
// passthrough fragment stage NewCompositePipeline builds the group-effect
// and backdrop composite draw from. Effect passes do not use it:
// effect.Registry prepends its own copy of the same vertex stage to each
// user fragment source, and an effect with no passes is not drawn at all
// (its input view is used as the result).
//
//go:embed shaders/composite.wgsl
var compositeShaderSource string

// CompileCompositeShader compiles the fullscreen-triangle passthrough
// shader module used by NewCompositePipeline.
func CompileCompositeShader(device hal.Device) (hal.ShaderModule, error) {
	mod, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "composite_shader",
		Source: hal.ShaderSource{WGSL: compositeShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("compile composite shader: %w", err)
	}
	return mod, nil
}

// GetCompositeShaderSource returns the WGSL source for the composite shader.
func GetCompositeShaderSource() string {
	return compositeShaderSource
}

// sceneShaderSource is the instanced, textured leaf-draw shader compiled by
// NewScenePipeline.
//
//go:embed shaders/scene.wgsl
var sceneShaderSource string

// clipShaderSource is the instanced, position-only clip push/pop shader
// compiled by CreateClipPipelines, sharing scene.wgsl's vertex/instance
// buffer layout.
//
//go:embed shaders/clip.wgsl
var clipShaderSource string

// swizzleShaderSource is the one-shot BGRA8-to-ARGB32 compute shader
// compiled by NewSwizzlePipeline.
//
//go:embed shaders/swizzle.wgsl
var swizzleShaderSource string
