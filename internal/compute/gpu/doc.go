// Package gpu registers a compute.Backend that runs the glyph kernel as a
// WGSL compute shader on a Vulkan device through wgpu/hal.
//
// Build with -tags nogpu to leave the GPU backend out.
package gpu
