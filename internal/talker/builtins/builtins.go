// Package builtins implements the engine's built-in talker models: the
// oscillators, envelope generators, and control-signal utilities every
// band can reference without an external plugin.
//
// Grounded on original_source/session/src/talkers/{square,adsrp,
// speed_modulator,audio_switch,bounded_square,env_shaper}.rs: each
// model's hum layout and per-sample computation follow the Rust source,
// adapted to the Go Talker contract of internal/talker and the typed
// buffers of internal/buffer.
package builtins

import (
	"math"

	"github.com/gndl/talkgraph/internal/buffer"
	"github.com/gndl/talkgraph/internal/talk"
	"github.com/gndl/talkgraph/internal/talker"
)

// SampleRate is the engine-wide audio sample rate used by every
// frequency-driven builtin to convert Hz into a phase increment.
// It defaults to 44100 Hz; nothing in the engine reassigns it.
var SampleRate float64 = 44100.0

const twoPi = 2 * math.Pi

// Sinusoidal is a sine-wave oscillator: freq (cv, Hz) and phase (control,
// radians) ears, one audio voice.
type Sinusoidal struct {
	*talker.Base
	phase float64
}

func NewSinusoidal(chunkSize int) *Sinusoidal {
	t := &Sinusoidal{Base: talker.NewBase("sinusoidal", false)}
	t.AddEar(talk.NewUniqueEar("freq", false, talk.NewHum("freq", buffer.Cv, 0, 20000, 440)))
	t.AddEar(talk.NewUniqueEar("phase", false, talk.NewHum("phase", buffer.Control, -twoPi, twoPi, 0)))
	t.AddVoice(talk.NewVoice("o", buffer.Audio, chunkSize))
	t.BindTalk(t.Talk)
	return t
}

func (t *Sinusoidal) Activate() error   { return nil }
func (t *Sinusoidal) Deactivate() error { return nil }
func (t *Sinusoidal) DependsOn(other talker.Talker) bool {
	return t.Base.DependsOn(t, other)
}

func (t *Sinusoidal) Talk(tick int64, ln int) (int, error) {
	if t.AlreadyComputed(tick) {
		return ln, nil
	}
	ln, err := t.ListenEars(tick, ln)
	if err != nil {
		return 0, err
	}
	freqEar, _ := t.EarByTag("freq")
	phaseEar, _ := t.EarByTag("phase")
	freqHum, _ := freqEar.Unique().HumByTag("freq")
	phaseHum, _ := phaseEar.Unique().HumByTag("phase")

	phaseOffset, _, err := phaseHum.Talk.Value(tick, ln)
	if err != nil {
		return 0, err
	}

	out := t.Voices()[0].Buf
	for i := 0; i < ln; i++ {
		freq, _, err := freqHum.Talk.Value(tick, ln)
		if err != nil {
			return 0, err
		}
		out.Set(i, float32(math.Sin(t.phase+float64(phaseOffset))))
		t.phase += twoPi * float64(freq) / SampleRate
		if t.phase > twoPi {
			t.phase -= twoPi
		}
	}
	t.MarkComputed(tick, ln)
	return ln, nil
}

// Square is a band-naive square-wave oscillator: freq (cv, Hz) and duty
// (control, 0..1) ears, one audio voice. Grounded on
// session/src/talkers/square.rs's phase-accumulator shape.
type Square struct {
	*talker.Base
	phase float64
}

func NewSquare(chunkSize int) *Square {
	t := &Square{Base: talker.NewBase("square", false)}
	t.AddEar(talk.NewUniqueEar("freq", false, talk.NewHum("freq", buffer.Cv, 0, 20000, 440)))
	t.AddEar(talk.NewUniqueEar("duty", false, talk.NewHum("duty", buffer.Control, 0, 1, 0.5)))
	t.AddVoice(talk.NewVoice("o", buffer.Audio, chunkSize))
	t.BindTalk(t.Talk)
	return t
}

func (t *Square) Activate() error   { return nil }
func (t *Square) Deactivate() error { return nil }
func (t *Square) DependsOn(other talker.Talker) bool {
	return t.Base.DependsOn(t, other)
}

func (t *Square) Talk(tick int64, ln int) (int, error) {
	if t.AlreadyComputed(tick) {
		return ln, nil
	}
	ln, err := t.ListenEars(tick, ln)
	if err != nil {
		return 0, err
	}
	freqEar, _ := t.EarByTag("freq")
	dutyEar, _ := t.EarByTag("duty")
	freqHum, _ := freqEar.Unique().HumByTag("freq")
	dutyHum, _ := dutyEar.Unique().HumByTag("duty")

	duty, _, err := dutyHum.Talk.Value(tick, ln)
	if err != nil {
		return 0, err
	}

	out := t.Voices()[0].Buf
	for i := 0; i < ln; i++ {
		freq, _, err := freqHum.Talk.Value(tick, ln)
		if err != nil {
			return 0, err
		}
		var s float32 = -1
		if t.phase < float64(duty) {
			s = 1
		}
		out.Set(i, s)
		t.phase += float64(freq) / SampleRate
		if t.phase >= 1 {
			t.phase -= 1
		}
	}
	t.MarkComputed(tick, ln)
	return ln, nil
}

// BoundedSquare is Square restricted to a declared [low, high] frequency
// range instead of the full audio band, grounded on
// session/src/talkers/bounded_square.rs's clamped oscillator variant
// (used as a low-frequency control oscillator, e.g. tremolo).
type BoundedSquare struct {
	*talker.Base
	phase    float64
	lowBound float32
	hiBound  float32
}

func NewBoundedSquare(chunkSize int, low, high float32) *BoundedSquare {
	t := &BoundedSquare{Base: talker.NewBase("bounded_square", false), lowBound: low, hiBound: high}
	t.AddEar(talk.NewUniqueEar("freq", false, talk.NewHum("freq", buffer.Cv, low, high, low)))
	t.AddEar(talk.NewUniqueEar("duty", false, talk.NewHum("duty", buffer.Control, 0, 1, 0.5)))
	t.AddVoice(talk.NewVoice("o", buffer.Control, chunkSize))
	t.BindTalk(t.Talk)
	return t
}

func (t *BoundedSquare) Activate() error   { return nil }
func (t *BoundedSquare) Deactivate() error { return nil }
func (t *BoundedSquare) DependsOn(other talker.Talker) bool {
	return t.Base.DependsOn(t, other)
}

func (t *BoundedSquare) Talk(tick int64, ln int) (int, error) {
	if t.AlreadyComputed(tick) {
		return ln, nil
	}
	ln, err := t.ListenEars(tick, ln)
	if err != nil {
		return 0, err
	}
	freqEar, _ := t.EarByTag("freq")
	dutyEar, _ := t.EarByTag("duty")
	freqHum, _ := freqEar.Unique().HumByTag("freq")
	dutyHum, _ := dutyEar.Unique().HumByTag("duty")

	freq, _, err := freqHum.Talk.Value(tick, ln)
	if err != nil {
		return 0, err
	}
	if freq < t.lowBound {
		freq = t.lowBound
	}
	if freq > t.hiBound {
		freq = t.hiBound
	}
	duty, _, err := dutyHum.Talk.Value(tick, ln)
	if err != nil {
		return 0, err
	}

	out := t.Voices()[0].Buf
	for i := 0; i < ln; i++ {
		var s float32 = 0
		if t.phase < float64(duty) {
			s = 1
		}
		out.Set(i, s)
		t.phase += float64(freq) / SampleRate
		if t.phase >= 1 {
			t.phase -= 1
		}
	}
	t.MarkComputed(tick, ln)
	return ln, nil
}

// adsrStage enumerates the ADSR envelope's phases.
type adsrStage int

const (
	stageIdle adsrStage = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
)

// Adsrp is the attack/decay/sustain/release envelope, driven by a gate
// hum (cv, 0 or 1) and four time/level hums, emitting a control-rate
// envelope voice. Grounded on session/src/talkers/adsrp.rs's stage state
// machine.
type Adsrp struct {
	*talker.Base
	stage adsrStage
	level float64
}

func NewAdsrp(chunkSize int) *Adsrp {
	t := &Adsrp{Base: talker.NewBase("adsrp", false)}
	t.AddEar(talk.NewUniqueEar("gate", false, talk.NewHum("gate", buffer.Cv, 0, 1, 0)))
	t.AddEar(talk.NewUniqueEar("attack", false, talk.NewHum("attack", buffer.Control, 0, 60, 0.01)))
	t.AddEar(talk.NewUniqueEar("decay", false, talk.NewHum("decay", buffer.Control, 0, 60, 0.1)))
	t.AddEar(talk.NewUniqueEar("sustain", false, talk.NewHum("sustain", buffer.Control, 0, 1, 0.7)))
	t.AddEar(talk.NewUniqueEar("release", false, talk.NewHum("release", buffer.Control, 0, 60, 0.2)))
	t.AddVoice(talk.NewVoice("o", buffer.Control, chunkSize))
	t.BindTalk(t.Talk)
	return t
}

func (t *Adsrp) Activate() error   { return nil }
func (t *Adsrp) Deactivate() error { return nil }
func (t *Adsrp) DependsOn(other talker.Talker) bool {
	return t.Base.DependsOn(t, other)
}

func (t *Adsrp) hum(tag string) *talk.Hum {
	ear, _ := t.EarByTag(tag)
	h, _ := ear.Unique().HumByTag(tag)
	return h
}

func (t *Adsrp) Talk(tick int64, ln int) (int, error) {
	if t.AlreadyComputed(tick) {
		return ln, nil
	}
	ln, err := t.ListenEars(tick, ln)
	if err != nil {
		return 0, err
	}

	gate, _, err := t.hum("gate").Talk.Value(tick, ln)
	if err != nil {
		return 0, err
	}
	attack, _, _ := t.hum("attack").Talk.Value(tick, ln)
	decay, _, _ := t.hum("decay").Talk.Value(tick, ln)
	sustain, _, _ := t.hum("sustain").Talk.Value(tick, ln)
	release, _, _ := t.hum("release").Talk.Value(tick, ln)

	out := t.Voices()[0].Buf
	dt := 1.0 / SampleRate
	gated := gate > 0.5

	for i := 0; i < ln; i++ {
		switch t.stage {
		case stageIdle:
			if gated {
				t.stage = stageAttack
			}
		case stageAttack:
			if !gated {
				t.stage = stageRelease
				break
			}
			if attack <= 0 {
				t.level = 1
			} else {
				t.level += dt / float64(attack)
			}
			if t.level >= 1 {
				t.level = 1
				t.stage = stageDecay
			}
		case stageDecay:
			if !gated {
				t.stage = stageRelease
				break
			}
			if decay <= 0 {
				t.level = float64(sustain)
			} else {
				t.level -= dt * (1 - float64(sustain)) / float64(decay)
			}
			if t.level <= float64(sustain) {
				t.level = float64(sustain)
				t.stage = stageSustain
			}
		case stageSustain:
			if !gated {
				t.stage = stageRelease
			}
			t.level = float64(sustain)
		case stageRelease:
			if gated {
				t.stage = stageAttack
				break
			}
			if release <= 0 {
				t.level = 0
			} else {
				t.level -= dt * float64(sustain) / float64(release)
			}
			if t.level <= 0 {
				t.level = 0
				t.stage = stageIdle
			}
		}
		out.Set(i, float32(t.level))
	}
	t.MarkComputed(tick, ln)
	return ln, nil
}

// SpeedModulator reads its wired audio input's buffer at a position that
// advances by the speed hum's value each sample (wrapping within the
// buffer) and emits the result on a Cv voice, grounded on
// session/src/talkers/speed_modulator.rs. An unwired input emits its
// literal value.
type SpeedModulator struct {
	*talker.Base
	position float64
	lastIn   float32
}

func NewSpeedModulator(chunkSize int) *SpeedModulator {
	t := &SpeedModulator{Base: talker.NewBase("speed_modulator", false)}
	t.AddEar(talk.NewUniqueEar("in", false, talk.NewHum("in", buffer.Audio, -1e6, 1e6, 0)))
	t.AddEar(talk.NewUniqueEar("speed", false, talk.NewHum("speed", buffer.Control, -100, 100, 1)))
	t.AddVoice(talk.NewVoice("o", buffer.Cv, chunkSize))
	t.BindTalk(t.Talk)
	return t
}

func (t *SpeedModulator) Activate() error   { return nil }
func (t *SpeedModulator) Deactivate() error { return nil }
func (t *SpeedModulator) DependsOn(other talker.Talker) bool {
	return t.Base.DependsOn(t, other)
}

func (t *SpeedModulator) Talk(tick int64, ln int) (int, error) {
	if t.AlreadyComputed(tick) {
		return ln, nil
	}
	ln, err := t.ListenEars(tick, ln)
	if err != nil {
		return 0, err
	}
	inEar, _ := t.EarByTag("in")
	speedEar, _ := t.EarByTag("speed")
	inHum, _ := inEar.Unique().HumByTag("in")
	speedHum, _ := speedEar.Unique().HumByTag("speed")

	speed, _, err := speedHum.Talk.Value(tick, ln)
	if err != nil {
		return 0, err
	}
	inBuf, _, err := inHum.Talk.AudioBuffer(tick, ln)
	if err != nil {
		return 0, err
	}

	out := t.Voices()[0].Buf
	for i := 0; i < ln; i++ {
		var v float32
		if inBuf != nil {
			idx := int(t.position) % inBuf.Len()
			if idx < 0 {
				idx += inBuf.Len()
			}
			v = inBuf.At(idx)
		} else {
			v, _, _ = inHum.Talk.Value(tick, ln)
		}
		out.Set(i, v)
		t.position += float64(speed)
		t.lastIn = v
	}
	t.MarkComputed(tick, ln)
	return ln, nil
}

// AudioSwitch selects one of a set-structured collection of audio inputs
// by an index hum, grounded on session/src/talkers/audio_switch.rs.
type AudioSwitch struct {
	*talker.Base
}

func NewAudioSwitch(chunkSize, initialInputs int) *AudioSwitch {
	t := &AudioSwitch{Base: talker.NewBase("audio_switch", false)}
	stem := &talk.Set{Hums: []*talk.Hum{talk.NewHum("in", buffer.Audio, -1, 1, 0)}}
	t.AddEar(talk.NewSetEar("ins", false, stem, initialInputs))
	t.AddEar(talk.NewUniqueEar("index", false, talk.NewHum("index", buffer.Control, 0, 1<<20, 0)))
	t.AddVoice(talk.NewVoice("o", buffer.Audio, chunkSize))
	t.BindTalk(t.Talk)
	return t
}

func (t *AudioSwitch) Activate() error   { return nil }
func (t *AudioSwitch) Deactivate() error { return nil }
func (t *AudioSwitch) DependsOn(other talker.Talker) bool {
	return t.Base.DependsOn(t, other)
}

func (t *AudioSwitch) Talk(tick int64, ln int) (int, error) {
	if t.AlreadyComputed(tick) {
		return ln, nil
	}
	ln, err := t.ListenEars(tick, ln)
	if err != nil {
		return 0, err
	}
	insEar, _ := t.EarByTag("ins")
	idxEar, _ := t.EarByTag("index")
	idxHum, _ := idxEar.Unique().HumByTag("index")

	idxVal, _, err := idxHum.Talk.Value(tick, ln)
	if err != nil {
		return 0, err
	}
	idx := int(idxVal)
	out := t.Voices()[0].Buf

	if idx < 0 || idx >= insEar.SetsLen() {
		out.Fill(0, ln)
		t.MarkComputed(tick, ln)
		return ln, nil
	}
	selected := insEar.Sets[idx]
	h, _ := selected.HumByTag("in")
	buf, achieved, err := h.Talk.AudioBuffer(tick, ln)
	if err != nil {
		return 0, err
	}
	if achieved < ln {
		ln = achieved
	}
	if buf == nil {
		out.Fill(0, ln)
	} else {
		out.CopyFrom(buf, ln)
	}
	t.MarkComputed(tick, ln)
	return ln, nil
}

// EnvShaper reshapes an envelope input through a single curvature
// exponent (out = in^curve, a negative input read as 0), grounded on
// session/src/talkers/env_shaper.rs.
type EnvShaper struct {
	*talker.Base
}

func NewEnvShaper(chunkSize int) *EnvShaper {
	t := &EnvShaper{Base: talker.NewBase("env_shaper", false)}
	t.AddEar(talk.NewUniqueEar("in", false, talk.NewHum("in", buffer.Cv, 0, 1, 0)))
	t.AddEar(talk.NewUniqueEar("curve", false, talk.NewHum("curve", buffer.Control, 0.1, 10, 1)))
	t.AddVoice(talk.NewVoice("o", buffer.Control, chunkSize))
	t.BindTalk(t.Talk)
	return t
}

func (t *EnvShaper) Activate() error   { return nil }
func (t *EnvShaper) Deactivate() error { return nil }
func (t *EnvShaper) DependsOn(other talker.Talker) bool {
	return t.Base.DependsOn(t, other)
}

func (t *EnvShaper) Talk(tick int64, ln int) (int, error) {
	if t.AlreadyComputed(tick) {
		return ln, nil
	}
	ln, err := t.ListenEars(tick, ln)
	if err != nil {
		return 0, err
	}
	inEar, _ := t.EarByTag("in")
	curveEar, _ := t.EarByTag("curve")
	inHum, _ := inEar.Unique().HumByTag("in")
	curveHum, _ := curveEar.Unique().HumByTag("curve")

	curve, _, err := curveHum.Talk.Value(tick, ln)
	if err != nil {
		return 0, err
	}
	out := t.Voices()[0].Buf
	for i := 0; i < ln; i++ {
		v, _, err := inHum.Talk.Value(tick, ln)
		if err != nil {
			return 0, err
		}
		if v < 0 {
			v = 0
		}
		out.Set(i, float32(math.Pow(float64(v), float64(curve))))
	}
	t.MarkComputed(tick, ln)
	return ln, nil
}

// Literal is a hidden constant-value talker: its one Cv voice holds the
// same value on every tick. Hums do not use it for their literal values:
// an unwired Talk holds its literal itself and has a nil Source. It is
// available through the factory as the "literal" model.
type Literal struct {
	*talker.Base
	value float32
}

func NewLiteral(chunkSize int, value float32) *Literal {
	t := &Literal{Base: talker.NewBase("literal", true), value: value}
	t.AddVoice(talk.NewVoice("o", buffer.Cv, chunkSize))
	t.BindTalk(t.Talk)
	return t
}

func (t *Literal) Activate() error   { return nil }
func (t *Literal) Deactivate() error { return nil }
func (t *Literal) DependsOn(other talker.Talker) bool {
	return t.Base.DependsOn(t, other)
}

func (t *Literal) Talk(tick int64, ln int) (int, error) {
	if t.AlreadyComputed(tick) {
		return ln, nil
	}
	t.Voices()[0].Buf.Fill(t.value, ln)
	t.MarkComputed(tick, ln)
	return ln, nil
}
