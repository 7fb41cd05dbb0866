//go:build !nogpu

package gpu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// registers the Vulkan backend via init()
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/wader/braillify/internal/compute"
	"github.com/wader/braillify/internal/glyph"
)

const (
	paramsSize   = 32
	tableSize    = 256 * 4
	maxGroupsX   = 65535
	fenceTimeout = 5 * time.Second
)

func init() {
	compute.RegisterGPU(func(logger *slog.Logger) (compute.Backend, error) {
		return Open(logger)
	})
}

// Backend rasterizes frames with a compute shader, one invocation per cell.
type Backend struct {
	mu     sync.Mutex
	logger *slog.Logger

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
	tableBuf   hal.Buffer
}

var _ compute.Backend = (*Backend)(nil)

func backendError(op string, err error) error {
	return &compute.BackendError{Backend: "gpu", Op: op, Err: err}
}

// Open acquires a Vulkan device and builds the kernel pipeline. Discrete
// GPUs are preferred over integrated ones, any other adapter is used as a
// last resort.
func Open(logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Backend{logger: logger}
	if err := b.init(); err != nil {
		b.Close()
		return nil, err
	}
	logger.Info("gpu backend ready", "adapter", b.adapter)
	return b, nil
}

func (b *Backend) init() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return backendError("open", fmt.Errorf("vulkan backend not available: %w", compute.ErrNoDevice))
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return backendError("create instance", err)
	}
	b.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return backendError("open", compute.ErrNoDevice)
	}
	selected := &adapters[0]
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		found := false
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				selected = &adapters[i]
				found = true
				break
			}
		}
		if found {
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return backendError("open device", err)
	}
	b.device = openDev.Device
	b.queue = openDev.Queue
	b.adapter = selected.Info.Name

	if err := b.createPipeline(); err != nil {
		return backendError("create pipeline", err)
	}
	return nil
}

func (b *Backend) createPipeline() error {
	spirv, err := compileKernel()
	if err != nil {
		return err
	}
	shader, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "glyph_kernel",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	b.shader = shader

	bindLayout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "glyph_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	b.bindLayout = bindLayout

	pipeLayout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "glyph_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{b.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	b.pipeLayout = pipeLayout

	pipeline, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "glyph_pipeline", Layout: b.pipeLayout,
		Compute: hal.ComputeState{Module: b.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	b.pipeline = pipeline

	tableBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "glyph_table", Size: uint64(tableSize),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create table buffer: %w", err)
	}
	b.tableBuf = tableBuf
	b.queue.WriteBuffer(tableBuf, 0, tableBytes())

	return nil
}

func tableBytes() []byte {
	bs := make([]byte, tableSize)
	for i, r := range glyph.AltTable() {
		binary.LittleEndian.PutUint32(bs[i*4:], uint32(r))
	}
	return bs
}

// dispatchSize splits cells workgroups over x and y, x is limited to 65535
// groups per dimension.
func dispatchSize(cells int) (x, y, stride uint32) {
	groups := (cells + workgroupSize - 1) / workgroupSize
	if groups <= maxGroupsX {
		return uint32(max(groups, 1)), 1, uint32(max(groups, 1) * workgroupSize)
	}
	y = uint32((groups + maxGroupsX - 1) / maxGroupsX)
	return maxGroupsX, y, maxGroupsX * workgroupSize
}

func makeParams(job compute.Job, cells int, stride uint32) []byte {
	bs := make([]byte, paramsSize)
	var invert, alt uint32
	if job.Options.Invert {
		invert = 1
	}
	if job.Options.Alt {
		alt = 1
	}
	binary.LittleEndian.PutUint32(bs[0:], uint32(job.Frame.Width))
	binary.LittleEndian.PutUint32(bs[4:], uint32(cells))
	binary.LittleEndian.PutUint32(bs[8:], stride)
	binary.LittleEndian.PutUint32(bs[12:], invert)
	binary.LittleEndian.PutUint32(bs[16:], math.Float32bits(float32(job.Options.Threshold)))
	binary.LittleEndian.PutUint32(bs[20:], uint32(job.Options.Space))
	binary.LittleEndian.PutUint32(bs[24:], alt)
	return bs
}

func (b *Backend) Name() string { return "gpu" }

// Adapter returns the name of the device in use.
func (b *Backend) Adapter() string { return b.adapter }

// Rasterize uploads the frame, runs one kernel invocation per cell and
// waits for the result to be read back.
func (b *Backend) Rasterize(ctx context.Context, job compute.Job, out []rune) error {
	if err := job.Validate(out); err != nil {
		return backendError("rasterize", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == nil {
		return backendError("rasterize", errors.New("backend closed"))
	}

	cells := len(out)
	pixelBytes := job.Frame.Pix[:job.Frame.Width*job.Frame.Height*4]
	glyphSize := uint64(cells * 4)
	gx, gy, stride := dispatchSize(cells)

	paramsBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "glyph_params", Size: paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return backendError("create params buffer", err)
	}
	defer b.device.DestroyBuffer(paramsBuf)

	pixelBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "glyph_pixels", Size: uint64(len(pixelBytes)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return backendError("create pixel buffer", err)
	}
	defer b.device.DestroyBuffer(pixelBuf)

	glyphBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "glyph_output", Size: glyphSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return backendError("create output buffer", err)
	}
	defer b.device.DestroyBuffer(glyphBuf)

	stagingBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "glyph_staging", Size: glyphSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return backendError("create staging buffer", err)
	}
	defer b.device.DestroyBuffer(stagingBuf)

	b.queue.WriteBuffer(paramsBuf, 0, makeParams(job, cells, stride))
	b.queue.WriteBuffer(pixelBuf, 0, pixelBytes)

	bindGroup, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "glyph_bind", Layout: b.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramsBuf.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: pixelBuf.NativeHandle(), Offset: 0, Size: uint64(len(pixelBytes))}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: b.tableBuf.NativeHandle(), Offset: 0, Size: uint64(tableSize)}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: glyphBuf.NativeHandle(), Offset: 0, Size: glyphSize}},
		},
	})
	if err != nil {
		return backendError("create bind group", err)
	}
	defer b.device.DestroyBindGroup(bindGroup)

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "glyph_encoder"})
	if err != nil {
		return backendError("create command encoder", err)
	}
	if err := encoder.BeginEncoding("glyph"); err != nil {
		return backendError("begin encoding", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "glyph_pass"})
	pass.SetPipeline(b.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch(gx, gy, 1)
	pass.End()
	encoder.CopyBufferToBuffer(glyphBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: glyphSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return backendError("end encoding", err)
	}
	defer b.device.FreeCommandBuffer(cmdBuf)

	fence, err := b.device.CreateFence()
	if err != nil {
		return backendError("create fence", err)
	}
	defer b.device.DestroyFence(fence)
	if err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return backendError("submit", err)
	}
	fenceOK, err := b.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !fenceOK {
		return backendError("wait", fmt.Errorf("ok=%v err=%w", fenceOK, err))
	}

	readback := make([]byte, glyphSize)
	if err := b.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return backendError("readback", err)
	}
	for i := range out {
		out[i] = rune(binary.LittleEndian.Uint32(readback[i*4:]))
	}

	return nil
}

// Close releases pipeline objects, the device and the instance.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device != nil {
		if b.tableBuf != nil {
			b.device.DestroyBuffer(b.tableBuf)
		}
		if b.pipeline != nil {
			b.device.DestroyComputePipeline(b.pipeline)
		}
		if b.pipeLayout != nil {
			b.device.DestroyPipelineLayout(b.pipeLayout)
		}
		if b.bindLayout != nil {
			b.device.DestroyBindGroupLayout(b.bindLayout)
		}
		if b.shader != nil {
			b.device.DestroyShaderModule(b.shader)
		}
		b.device.Destroy()
		b.device = nil
	}
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
	b.queue = nil
	b.tableBuf = nil
	b.pipeline = nil
	b.pipeLayout = nil
	b.bindLayout = nil
	b.shader = nil
	return nil
}
