// Package buffer implements the engine's fixed-capacity typed sample
// buffers: the memory each voice owns and every ear reads from by
// reference. Grounded on talker/src/horn.rs's Audio/Control/Cv buffer
// split (original_source/talker/src/ear.rs references AudioBuf/CvBuf
// without defining them in the filtered source set; this package gives
// them a concrete Go shape) and the hum range constants of
// session/src/mixer.rs's AudioFormat::{MIN_AUDIO,MAX_AUDIO,DEF_AUDIO}.
package buffer

// PortType tags the kind of signal a voice produces or a hum accepts.
type PortType int

const (
	Audio PortType = iota
	Control
	Cv
	Atom
)

func (t PortType) String() string {
	switch t {
	case Audio:
		return "audio"
	case Control:
		return "control"
	case Cv:
		return "cv"
	case Atom:
		return "atom"
	default:
		return "unknown"
	}
}

// Numeric range constants for the Audio port type.
const (
	MinAudio float32 = -1.0
	MaxAudio float32 = 1.0
	DefAudio float32 = 0.0
)

// Clamp confines a sample to the audio range.
func Clamp(sample float32) float32 {
	if sample < MinAudio {
		return MinAudio
	}
	if sample > MaxAudio {
		return MaxAudio
	}
	return sample
}

// Buffer is a fixed-length sequence of float32 samples, owned by exactly
// one voice and shared by reference with the ears that read it. Control
// buffers logically hold one sample per chunk; callers conventionally
// only read index 0, but the backing storage is still chunk_size wide so
// a talker may treat it identically to an Audio/Cv buffer internally.
type Buffer struct {
	portType PortType
	samples  []float32
}

// New allocates a buffer of the given port type and capacity (the chunk
// size at allocation time), filled with the port type's default value.
func New(portType PortType, capacity int) *Buffer {
	b := &Buffer{portType: portType, samples: make([]float32, capacity)}
	def := float32(0)
	if portType == Audio {
		def = DefAudio
	}
	for i := range b.samples {
		b.samples[i] = def
	}
	return b
}

// PortType reports the buffer's port type.
func (b *Buffer) PortType() PortType { return b.portType }

// Len returns the buffer's capacity (the chunk size).
func (b *Buffer) Len() int { return len(b.samples) }

// Samples exposes the raw backing slice, usable by external processor
// adapters that need a flat array pointer.
func (b *Buffer) Samples() []float32 { return b.samples }

// At returns the sample at index i.
func (b *Buffer) At(i int) float32 { return b.samples[i] }

// Set assigns the sample at index i, clamping to [MinAudio, MaxAudio] for
// Audio-typed buffers.
func (b *Buffer) Set(i int, v float32) {
	if b.portType == Audio {
		v = Clamp(v)
	}
	b.samples[i] = v
}

// Fill sets every sample in [0, n) to v.
func (b *Buffer) Fill(v float32, n int) {
	if n > len(b.samples) {
		n = len(b.samples)
	}
	for i := 0; i < n; i++ {
		b.Set(i, v)
	}
}

// CopyFrom copies n samples from src into b starting at index 0.
func (b *Buffer) CopyFrom(src *Buffer, n int) {
	if n > len(b.samples) {
		n = len(b.samples)
	}
	if n > len(src.samples) {
		n = len(src.samples)
	}
	copy(b.samples[:n], src.samples[:n])
}

// AtomEvent is one entry of an Atom buffer's event sequence: an opaque
// tagged payload timestamped by its sample offset within the chunk.
type AtomEvent struct {
	Offset  int
	Tag     string
	Payload any
}

// AtomBuffer carries an event sequence rather than a sample array; it is
// used by talkers that emit discrete events (e.g. an external adapter's
// control-change stream) instead of continuous signal. It is cleared at
// the start of each chunk in which it serves as an output sink.
type AtomBuffer struct {
	events []AtomEvent
}

// NewAtom allocates an empty atom buffer.
func NewAtom() *AtomBuffer { return &AtomBuffer{} }

// Push appends an event to the sequence.
func (a *AtomBuffer) Push(ev AtomEvent) { a.events = append(a.events, ev) }

// Clear empties the event sequence.
func (a *AtomBuffer) Clear() { a.events = a.events[:0] }

// Events returns the current event sequence.
func (a *AtomBuffer) Events() []AtomEvent { return a.events }
