//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/naga"
)

// must match the dispatch in rasterize
const workgroupSize = 64

// Loops are unrolled, naga SPIR-V output only runs the first iteration of
// some loops.
const kernelShaderWGSL = `
struct Params {
    width: u32,
    cells: u32,
    stride: u32,
    invert: u32,
    threshold: f32,
    space: u32,
    alt: u32,
    pad: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> pixels: array<u32>;
@group(0) @binding(2) var<storage, read> table: array<u32>;
@group(0) @binding(3) var<storage, read_write> glyphs: array<u32>;

fn lit(x: u32, y: u32) -> u32 {
    let p = pixels[x + y * params.width];
    let r = f32(p & 0xffu);
    let g = f32((p >> 8u) & 0xffu);
    let b = f32((p >> 16u) & 0xffu);
    let grey = sqrt((r * r + g * g + b * b) / 3.0);
    return select(0u, 1u, (grey > params.threshold * 255.0) == (params.invert == 0u));
}

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x + id.y * params.stride;
    if (i >= params.cells) {
        return;
    }

    let columns = params.width / 2u;
    let x = (i % columns) * 2u;
    let y = (i / columns) * 4u;

    if (params.alt != 0u) {
        var block = lit(x, y);
        block = block | (lit(x + 1u, y) << 1u);
        block = block | (lit(x, y + 1u) << 2u);
        block = block | (lit(x + 1u, y + 1u) << 3u);
        block = block | (lit(x, y + 2u) << 4u);
        block = block | (lit(x + 1u, y + 2u) << 5u);
        block = block | (lit(x, y + 3u) << 6u);
        block = block | (lit(x + 1u, y + 3u) << 7u);
        glyphs[i] = table[block];
        return;
    }

    var dots = lit(x, y);
    dots = dots | (lit(x, y + 1u) << 1u);
    dots = dots | (lit(x, y + 2u) << 2u);
    dots = dots | (lit(x + 1u, y) << 3u);
    dots = dots | (lit(x + 1u, y + 1u) << 4u);
    dots = dots | (lit(x + 1u, y + 2u) << 5u);
    dots = dots | (lit(x, y + 3u) << 6u);
    dots = dots | (lit(x + 1u, y + 3u) << 7u);
    glyphs[i] = select(0x2800u + dots, params.space, dots == 0u);
}
`

// compileKernel compiles the kernel WGSL to SPIR-V words.
func compileKernel() ([]uint32, error) {
	spirvBytes, err := naga.Compile(kernelShaderWGSL)
	if err != nil {
		return nil, fmt.Errorf("compile kernel shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("compile kernel shader: SPIR-V size %d not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
