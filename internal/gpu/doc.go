//go:build !nogpu

// Package gpu implements the brick pool device on the gogpu/wgpu hardware
// abstraction layer.
//
// Brick textures are 3-D, single mip, and sampled by the brick slice
// shader. Uploads go through Queue.WriteTexture with the row and image
// strides of the source region, so bricks that view into a larger in-core
// volume are uploaded without an intermediate copy.
//
// Intensity and mask bricks use normalized formats (R8Unorm, R16Unorm) so
// the shader filters them. Label bricks are R32Uint and are not filterable.
//
// SliceRenderer batches the slice polygons of the drawn bricks and records
// them into one render pass per flush, blending front to back or back to
// front.
package gpu
