// Package talker defines the Talker contract every sound-producing or
// signal-processing node implements, plus the shared TalkerBase that
// concrete models embed.
//
// Grounded on original_source/talker/src/talker.rs's TalkerBase/Talker
// trait: an identifier, a data string (the model's free-form parameter
// blob), an ordered ear list, an ordered voice list, and a Talk method
// the scheduler calls every tick.
package talker

import (
	"fmt"

	"github.com/gndl/talkgraph/internal/talk"
)

// Talker is the contract every model (oscillator, envelope, mixer input
// adapter, external-process bridge) implements.
type Talker interface {
	ID() int64
	Name() string
	Model() string
	SetIdentity(id int64, name string)

	IsHidden() bool
	Ears() []*talk.Ear
	Voices() []*talk.Voice
	EarByTag(tag string) (*talk.Ear, bool)

	// DataString/SetDataFromString read and write the model's free-form
	// parameter blob, used by session (de)serialization for parameters
	// that are not expressed as wired/literal hums (e.g. a waveform table
	// choice, a filename).
	DataString() string
	SetDataFromString(s string) error

	// Activate/Deactivate bracket a period in which Talk will be called;
	// models that hold external resources (a file handle, a device
	// connection) acquire/release them here.
	Activate() error
	Deactivate() error

	// Talk computes up to ln samples of every voice for the given tick
	// and returns the number of samples actually produced (never more
	// than ln; less only when an upstream ear could not fill the
	// request). It must be idempotent within a tick: the scheduler may
	// call Talk on a talker that has already been listened to this tick
	// by another consumer, via the same memoization check ear pulls
	// perform.
	Talk(tick int64, ln int) (int, error)

	// Listen pulls Talk for up to ln samples if this talker is not
	// already current for tick, returning the achieved length; it is
	// how a wired hum (via talk.VoiceRef) drives its source. Implements
	// talk.VoiceRef together with VoiceByTag.
	Listen(tick int64, ln int) (int, error)
	VoiceByTag(tag string) (*talk.Voice, bool)

	// DependsOn reports whether this talker's ears (transitively) reach
	// other, used by the band's acyclicity check.
	DependsOn(other Talker) bool
}

// Base implements the bookkeeping every Talker shares: identity, ear/
// voice storage, and the VoiceRef methods a Talk needs to pull this
// talker. Concrete models embed Base and implement Talk themselves.
type Base struct {
	id       int64
	name     string
	model    string
	hidden   bool
	ears     []*talk.Ear
	voices   []*talk.Voice
	tick     int64
	lastLen  int
	talkFunc func(tick int64, ln int) (int, error)
}

// NewBase constructs the shared state for a model named `model`.
func NewBase(model string, hidden bool) *Base {
	return &Base{model: model, hidden: hidden, tick: -1}
}

// BindTalk records the concrete model's Talk method so Listen can invoke
// it; every constructor calls this once, immediately after building its
// ears and voices (e.g. `t.BindTalk(t.Talk)`).
func (b *Base) BindTalk(f func(tick int64, ln int) (int, error)) { b.talkFunc = f }

// Listen implements talk.VoiceRef: it pulls this talker's Talk for up
// to ln samples if it is not already current for tick, the mechanism
// every wired hum uses to pull its source, and returns the achieved
// length (the prior call's, if already current this tick). Mirrors
// talker/src/ear.rs's listen_talk tick comparison, pushed down into the
// talker itself so the memoization check and the Talk call stay atomic.
func (b *Base) Listen(tick int64, ln int) (int, error) {
	if b.AlreadyComputed(tick) {
		return b.lastLen, nil
	}
	if b.talkFunc == nil {
		return 0, fmt.Errorf("talker %s: Talk not bound", b.name)
	}
	return b.talkFunc(tick, ln)
}

func (b *Base) ID() int64                       { return b.id }
func (b *Base) Name() string                     { return b.name }
func (b *Base) Model() string                    { return b.model }
func (b *Base) IsHidden() bool                   { return b.hidden }
func (b *Base) Ears() []*talk.Ear                { return b.ears }
func (b *Base) Voices() []*talk.Voice            { return b.voices }
func (b *Base) SetIdentity(id int64, name string) { b.id, b.name = id, name }

// AddEar registers an ear on construction.
func (b *Base) AddEar(e *talk.Ear) { b.ears = append(b.ears, e) }

// AddVoice registers a voice on construction.
func (b *Base) AddVoice(v *talk.Voice) { b.voices = append(b.voices, v) }

func (b *Base) EarByTag(tag string) (*talk.Ear, bool) {
	for _, e := range b.ears {
		if e.Tag == tag {
			return e, true
		}
	}
	return nil, false
}

// VoiceByTag implements talk.VoiceRef.
func (b *Base) VoiceByTag(tag string) (*talk.Voice, bool) {
	if tag == "" && len(b.voices) > 0 {
		return b.voices[0], true
	}
	for _, v := range b.voices {
		if v.Tag == tag {
			return v, true
		}
	}
	return nil, false
}

// CurrentTick reports the last tick this talker was computed at.
func (b *Base) CurrentTick() int64 { return b.tick }

// AlreadyComputed reports whether Talk at this tick would be redundant;
// concrete models call this at the top of Talk to implement the
// memoization invariant (talk/src/ear.rs's listen_talk tick comparison).
func (b *Base) AlreadyComputed(tick int64) bool { return b.tick == tick }

// MarkComputed stamps the talker (and every voice) as current for tick,
// having produced ln samples.
func (b *Base) MarkComputed(tick int64, ln int) {
	b.tick = tick
	b.lastLen = ln
	for _, v := range b.voices {
		v.MarkComputed(tick, ln)
	}
}

// DependsOn performs a DFS over wired ears to find other.
func (b *Base) DependsOn(self Talker, other Talker) bool {
	seen := make(map[int64]bool)
	var visit func(t Talker) bool
	visit = func(t Talker) bool {
		if t == other {
			return true
		}
		if seen[t.ID()] {
			return false
		}
		seen[t.ID()] = true
		for _, ear := range t.Ears() {
			found := false
			_ = ear.VisitSets(func(_ int, s *talk.Set) error {
				for _, h := range s.Hums {
					if h.Talk.IsWired() {
						if src, ok := h.Talk.Source.(Talker); ok && visit(src) {
							found = true
						}
					}
				}
				return nil
			})
			if found {
				return true
			}
		}
		return false
	}
	return visit(self)
}

// DefaultActivate/DefaultDeactivate are no-ops embeddable by models with
// no external resource to acquire.
func (b *Base) DefaultActivate() error   { return nil }
func (b *Base) DefaultDeactivate() error { return nil }

// DataString/SetDataFromString default implementations for models with
// no free-form parameter blob (all state lives in hums).
func (b *Base) DataString() string { return "" }
func (b *Base) SetDataFromString(s string) error {
	if s != "" {
		return fmt.Errorf("talker %s: model %s takes no data string", b.name, b.model)
	}
	return nil
}

// ListenEars pulls every wired ear's source talkers for the current
// tick, up to ln samples, the step every model's Talk performs before
// reading hum values. Returns the minimum achieved length across every
// ear (ln if no ear limited it further), which a model must treat as
// the actual number of samples it can produce this call.
func (b *Base) ListenEars(tick int64, ln int) (int, error) {
	achieved := ln
	for _, ear := range b.ears {
		a, err := ear.Listen(tick, ln)
		if err != nil {
			return 0, err
		}
		if a < achieved {
			achieved = a
		}
	}
	return achieved, nil
}

// VoicesChunkCapacity returns the capacity of voice 0's buffer, the
// usual basis for deciding how many samples Talk can safely write this
// call when the scheduler offers fewer than a full chunk (end of a
// time-range, or a final partial chunk before Stop).
func (b *Base) VoicesChunkCapacity() int {
	if len(b.voices) == 0 {
		return 0
	}
	if b.voices[0].Buf == nil {
		return 0
	}
	return b.voices[0].Buf.Len()
}
