//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/brick_slice.wgsl
var brickSliceShaderSource string

// SliceShaderSource returns the WGSL source of the brick slice shader.
func SliceShaderSource() string { return brickSliceShaderSource }

// CompileSliceShader compiles the brick slice shader to SPIR-V words.
func CompileSliceShader() ([]uint32, error) {
	return compileToSPIRV(brickSliceShaderSource)
}

// compileToSPIRV compiles WGSL source to little-endian SPIR-V words.
func compileToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile shader: %w", err)
	}
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

// CreateSliceShaderModule compiles the brick slice shader and creates a
// shader module on the device.
func (d *Device) CreateSliceShaderModule() (hal.ShaderModule, error) {
	code, err := CompileSliceShader()
	if err != nil {
		return nil, err
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "brick_slice",
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create brick slice module: %w", err)
	}
	return module, nil
}
