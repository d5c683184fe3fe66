// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
)

//go:embed shaders/notes.wgsl
var notesShaderSource string

// Instance buffer layout: four vec4<f32> per rounded rect.
const (
	instanceStride = 64

	offsetRect   = 0
	offsetParams = 16
	offsetFill   = 32
	offsetStroke = 48

	// verticesPerInstance is the quad drawn for each instance.
	verticesPerInstance = 6

	// DefaultMaxInstances bounds a single instanced draw.
	DefaultMaxInstances = 1 << 16
)

// ShaderCompiler translates WGSL into a backend binary (SPIR-V).
type ShaderCompiler func(source string) ([]byte, error)

// PipelineDesc is everything the host needs to build the render pipeline
// for the instanced note shader.
type PipelineDesc struct {
	Label         string
	SPIRV         []byte
	VertexEntry   string
	FragmentEntry string
	Buffers       []gputypes.VertexBufferLayout
	Topology      gputypes.PrimitiveTopology
	Format        gputypes.TextureFormat

	// VerticesPerInstance is the vertex count of every draw.
	VerticesPerInstance uint32
}

// DrawCommand is one instanced draw over a contiguous instance range.
type DrawCommand struct {
	Blend         gputypes.BlendState
	Scissor       image.Rectangle
	FirstInstance uint32
	InstanceCount uint32
}

// TextRun is text the host draws over the frame after the instanced pass.
type TextRun struct {
	Text    string
	Origin  Point
	Size    float64
	Color   Color
	Scissor image.Rectangle
}

// LineCommand is a non axis-aligned line the host strokes itself.
type LineCommand struct {
	P0, P1  Point
	Pen     Pen
	Scissor image.Rectangle
}

// CommandList is one encoded frame.
type CommandList struct {
	Width, Height int
	Format        gputypes.TextureFormat

	// Instances is the little-endian instance buffer, instanceStride bytes
	// per instance.
	Instances []byte
	Draws     []DrawCommand
	Text      []TextRun
	Lines     []LineCommand
}

// InstanceCount returns the number of encoded instances.
func (l *CommandList) InstanceCount() int { return len(l.Instances) / instanceStride }

// Submitter hands encoded frames to the host's GPU queue.
type Submitter interface {
	// Prepare builds the render pipeline. Called once by NewGPUBackend.
	Prepare(desc *PipelineDesc) error

	// Submit uploads the instance buffer and records the draws. The list is
	// reused after Submit returns.
	Submit(list *CommandList) error
}

// GPUBackend is the hardware backend.
//
// Rounded rectangles are encoded as instances of a single WGSL pipeline
// compiled with naga; each Draw*Instanced call becomes one DrawCommand.
// The backend RECEIVES the device from the host and never touches it
// directly: frames are handed to a Submitter owned by the host.
type GPUBackend struct {
	handle    DeviceHandle
	submitter Submitter
	caps      DeviceCapabilities
	desc      PipelineDesc
	compiler  ShaderCompiler

	maxInstances int

	list    CommandList
	clips   []image.Rectangle
	xforms  []Matrix
	blend   BlendMode
	inFrame bool
	closed  bool

	stats Stats
	log   *slog.Logger
}

// GPUOption configures a GPUBackend.
type GPUOption func(*GPUBackend)

// WithCompiler replaces the WGSL compiler. Nil is ignored.
func WithCompiler(c ShaderCompiler) GPUOption {
	return func(b *GPUBackend) {
		if c != nil {
			b.compiler = c
		}
	}
}

// WithMaxInstances bounds a single instanced draw.
func WithMaxInstances(n int) GPUOption {
	return func(b *GPUBackend) {
		if n > 0 {
			b.maxInstances = n
		}
	}
}

// NewGPUBackend compiles the note pipeline and prepares it on sub.
func NewGPUBackend(handle DeviceHandle, sub Submitter, opts ...GPUOption) (*GPUBackend, error) {
	if handle == nil {
		return nil, ErrNoDevice
	}
	if sub == nil {
		return nil, ErrNoSubmitter
	}
	caps := QueryCapabilities(handle)
	if !SupportedSurfaceFormat(caps.SurfaceFormat) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, caps.SurfaceFormat)
	}

	b := &GPUBackend{
		handle:       handle,
		submitter:    sub,
		caps:         caps,
		compiler:     naga.Compile,
		maxInstances: DefaultMaxInstances,
		log:          discardLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}

	spirv, err := b.compiler(notesShaderSource)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShaderCompile, err)
	}
	b.desc = PipelineDesc{
		Label:               "noteroll-notes",
		SPIRV:               spirv,
		VertexEntry:         "vs_main",
		FragmentEntry:       "fs_main",
		Buffers:             InstanceLayout(),
		Topology:            gputypes.PrimitiveTopologyTriangleList,
		Format:              caps.SurfaceFormat,
		VerticesPerInstance: verticesPerInstance,
	}
	if err := sub.Prepare(&b.desc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipelineSetup, err)
	}
	return b, nil
}

// InstanceLayout returns the vertex buffer layout of the instance buffer.
func InstanceLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: instanceStride,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x4, Offset: offsetRect, ShaderLocation: 0},   // rect
				{Format: gputypes.VertexFormatFloat32x4, Offset: offsetParams, ShaderLocation: 1}, // rx, ry, stroke
				{Format: gputypes.VertexFormatFloat32x4, Offset: offsetFill, ShaderLocation: 2},   // fill
				{Format: gputypes.VertexFormatFloat32x4, Offset: offsetStroke, ShaderLocation: 3}, // stroke
			},
		},
	}
}

// BlendState maps a BlendMode to premultiplied-alpha blend factors.
func BlendState(mode BlendMode) gputypes.BlendState {
	switch mode {
	case BlendSrc:
		return gputypes.BlendStateReplace()
	case BlendMultiply:
		return gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorDst,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendStatePremultiplied().Alpha,
		}
	case BlendScreen:
		return gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOneMinusSrc,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendStatePremultiplied().Alpha,
		}
	default:
		return gputypes.BlendStatePremultiplied()
	}
}

// Name returns "hardware".
func (b *GPUBackend) Name() string { return "hardware" }

// Kind returns KindHardware.
func (b *GPUBackend) Kind() Kind { return KindHardware }

// Capabilities reports the instanced pipeline's features.
func (b *GPUBackend) Capabilities() Capabilities {
	return Capabilities{
		IsGPU:                true,
		SupportsAntialiasing: true,
		SupportsBlendModes:   true,
		MaxInstances:         b.maxInstances,
	}
}

// DeviceHandle returns the underlying device handle.
func (b *GPUBackend) DeviceHandle() DeviceHandle { return b.handle }

// Pipeline returns the prepared pipeline description.
func (b *GPUBackend) Pipeline() *PipelineDesc { return &b.desc }

// SetLogger sets the logger for diagnostics.
func (b *GPUBackend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = discardLogger()
	}
	b.log = l
}

// BeginFrame resets the command list.
func (b *GPUBackend) BeginFrame(width, height int) error {
	if b.closed {
		return ErrBackendClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	b.list.Width, b.list.Height = width, height
	b.list.Format = b.caps.SurfaceFormat
	b.list.Instances = b.list.Instances[:0]
	b.list.Draws = b.list.Draws[:0]
	b.list.Text = b.list.Text[:0]
	b.list.Lines = b.list.Lines[:0]
	b.clips = append(b.clips[:0], image.Rect(0, 0, width, height))
	b.xforms = append(b.xforms[:0], Identity())
	b.blend = BlendSrcOver
	b.inFrame = true
	return nil
}

// FillRoundedRect encodes a one-instance draw.
func (b *GPUBackend) FillRoundedRect(rr RoundedRect, brush Brush, pen Pen) error {
	if err := b.check(); err != nil {
		return err
	}
	first := uint32(b.list.InstanceCount())
	if b.encode(rr, brush, pen) {
		b.appendDraw(first, 1)
	}
	b.stats.DrawCalls++
	b.stats.Primitives++
	return nil
}

// DrawRoundedRectsInstanced encodes rects as one draw, split only when the
// count exceeds the instance limit.
func (b *GPUBackend) DrawRoundedRectsInstanced(rects []RoundedRect, brush Brush, pen Pen) error {
	if err := b.check(); err != nil {
		return err
	}
	first := uint32(b.list.InstanceCount())
	n := uint32(0)
	for _, rr := range rects {
		if !b.encode(rr, brush, pen) {
			continue
		}
		n++
		if int(n) == b.maxInstances {
			b.appendDraw(first, n)
			first, n = first+n, 0
		}
	}
	if n > 0 {
		b.appendDraw(first, n)
	}
	b.stats.InstancedCalls++
	b.stats.Primitives += uint64(len(rects))
	return nil
}

// DrawLine encodes axis-aligned lines as thin rectangles and records any
// other line for the host.
func (b *GPUBackend) DrawLine(p0, p1 Point, pen Pen) error {
	if err := b.check(); err != nil {
		return err
	}
	if pen.None() {
		return nil
	}
	b.stats.DrawCalls++
	half := pen.Width / 2
	var r Rect
	switch {
	case p0.Y == p1.Y:
		r = Rect{X: math.Min(p0.X, p1.X), Y: p0.Y - half, W: math.Abs(p1.X - p0.X), H: pen.Width}
	case p0.X == p1.X:
		r = Rect{X: p0.X - half, Y: math.Min(p0.Y, p1.Y), W: pen.Width, H: math.Abs(p1.Y - p0.Y)}
	default:
		m := b.transform()
		b.list.Lines = append(b.list.Lines, LineCommand{P0: m.Apply(p0), P1: m.Apply(p1), Pen: pen, Scissor: b.clip()})
		return nil
	}
	first := uint32(b.list.InstanceCount())
	if b.encode(RoundedRect{Rect: r}, Solid(pen.Color), Pen{}) {
		b.appendDraw(first, 1)
	}
	return nil
}

// DrawText records a text run for the host's text overlay.
func (b *GPUBackend) DrawText(text string, p Point, size float64, c Color) error {
	if err := b.check(); err != nil {
		return err
	}
	if text == "" || c.Transparent() {
		return nil
	}
	b.list.Text = append(b.list.Text, TextRun{
		Text: text, Origin: b.transform().Apply(p), Size: size, Color: c, Scissor: b.clip(),
	})
	b.stats.TextRuns++
	return nil
}

// PushClip intersects the scissor with r.
func (b *GPUBackend) PushClip(r Rect) {
	if !b.inFrame {
		return
	}
	b.clips = append(b.clips, b.transform().ApplyRect(r).Pixels().Intersect(b.clip()))
}

// PopClip restores the previous scissor.
func (b *GPUBackend) PopClip() {
	if len(b.clips) > 1 {
		b.clips = b.clips[:len(b.clips)-1]
	}
}

// PushTransform premultiplies the current transform with m.
func (b *GPUBackend) PushTransform(m Matrix) {
	if !b.inFrame {
		return
	}
	b.xforms = append(b.xforms, m.Multiply(b.transform()))
}

// PopTransform restores the previous transform.
func (b *GPUBackend) PopTransform() {
	if len(b.xforms) > 1 {
		b.xforms = b.xforms[:len(b.xforms)-1]
	}
}

// SetBlendMode sets the blend state for subsequent draws.
func (b *GPUBackend) SetBlendMode(mode BlendMode) { b.blend = mode }

// EndFrame submits the command list.
func (b *GPUBackend) EndFrame() error {
	if err := b.check(); err != nil {
		return err
	}
	b.inFrame = false
	if err := b.submit(); err != nil {
		b.stats.FailedFrames++
		b.log.Error("render: frame submission failed", "err", err,
			"instances", b.list.InstanceCount(), "draws", len(b.list.Draws))
		return fmt.Errorf("render: submit: %w", err)
	}
	b.stats.Frames++
	b.log.Debug("render: frame submitted",
		"instances", b.list.InstanceCount(), "draws", len(b.list.Draws), "text", len(b.list.Text))
	return nil
}

// submit hands the list to the host. A panicking submitter is reported
// as ErrSubmitPanic.
func (b *GPUBackend) submit() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSubmitPanic, r)
		}
	}()
	return b.submitter.Submit(&b.list)
}

// AbortFrame drops the command list; nothing is submitted.
func (b *GPUBackend) AbortFrame() {
	if !b.inFrame {
		return
	}
	b.inFrame = false
	b.stats.AbortedFrames++
}

// Stats returns cumulative counters.
func (b *GPUBackend) Stats() Stats { return b.stats }

// Close releases the command list. The device belongs to the host.
func (b *GPUBackend) Close() error {
	b.AbortFrame()
	b.list = CommandList{}
	b.closed = true
	return nil
}

func (b *GPUBackend) check() error {
	if b.closed {
		return ErrBackendClosed
	}
	if !b.inFrame {
		return ErrFrameNotStarted
	}
	return nil
}

func (b *GPUBackend) transform() Matrix { return b.xforms[len(b.xforms)-1] }

func (b *GPUBackend) clip() image.Rectangle { return b.clips[len(b.clips)-1] }

// appendDraw records a draw for the given instance range.
func (b *GPUBackend) appendDraw(first, count uint32) {
	b.list.Draws = append(b.list.Draws, DrawCommand{
		Blend:         BlendState(b.blend),
		Scissor:       b.clip(),
		FirstInstance: first,
		InstanceCount: count,
	})
}

// encode appends one instance. It reports false when the rect is invalid
// or entirely outside the scissor.
func (b *GPUBackend) encode(rr RoundedRect, brush Brush, pen Pen) bool {
	if !rr.Valid() || (brush.None() && pen.None()) {
		return false
	}
	m := b.transform()
	dev := m.ApplyRect(rr.Rect)
	sc := b.clip()
	if !dev.Intersects(Rect{X: float64(sc.Min.X), Y: float64(sc.Min.Y), W: float64(sc.Dx()), H: float64(sc.Dy())}) {
		return false
	}
	sx, sy := m.ScaleFactors()
	rx, ry := rr.ClampedRadii()
	stroke := 0.0
	if !pen.None() {
		stroke = pen.Width * math.Min(sx, sy)
	}

	inst := Instance{
		Rect:   [4]float32{float32(dev.X), float32(dev.Y), float32(dev.W), float32(dev.H)},
		Params: [4]float32{float32(rx * sx), float32(ry * sy), float32(stroke), 0},
		Fill:   brush.Color.Premultiplied(),
		Stroke: pen.Color.Premultiplied(),
	}
	b.list.Instances = inst.AppendTo(b.list.Instances)
	return true
}

// Instance is the decoded form of one instance record.
type Instance struct {
	Rect   [4]float32
	Params [4]float32
	Fill   [4]float32
	Stroke [4]float32
}

// AppendTo appends the little-endian encoding of inst to buf.
func (inst Instance) AppendTo(buf []byte) []byte {
	for _, v := range [...][4]float32{inst.Rect, inst.Params, inst.Fill, inst.Stroke} {
		for _, f := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf
}

// DecodeInstance reads the i-th instance from an instance buffer.
func DecodeInstance(buf []byte, i int) Instance {
	rec := buf[i*instanceStride : (i+1)*instanceStride]
	read := func(off int) [4]float32 {
		var v [4]float32
		for k := range v {
			v[k] = math.Float32frombits(binary.LittleEndian.Uint32(rec[off+4*k:]))
		}
		return v
	}
	return Instance{
		Rect:   read(offsetRect),
		Params: read(offsetParams),
		Fill:   read(offsetFill),
		Stroke: read(offsetStroke),
	}
}

// Ensure GPUBackend implements CapableBackend.
var _ CapableBackend = (*GPUBackend)(nil)
