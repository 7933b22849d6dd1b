// Package talk implements the engine's wiring primitives: voices (the
// named, typed outputs a talker exposes), ears (the typed inputs a
// talker consumes, either a single slot or a growable set of slots),
// and talks (the connection of one ear slot to either a literal value
// or another talker's voice).
//
// Grounded on talker/src/ear.rs's Talk/Talks/Ear vocabulary (the single
// Talk and the ordered Talks collection of a unique ear) and on
// session/src/mixer.rs's operational use of a richer set-structured ear
// (ear::Set, Set::from_attributs, Ear::new(tag, hidden, stem_set, sets))
// for an ear that holds a growable collection of same-shaped sets. This
// package names that second shape Set/Hum to match the engine's own
// vocabulary: a Set is an ordered collection of Hums, a Hum is one typed
// connection slot inside a set.
package talk

import (
	"fmt"

	"github.com/gndl/talkgraph/internal/buffer"
)

// Voice is a named, typed output slot a talker exposes. Its buffer is
// allocated once (at the talker's construction/chunk-size change) and
// reused every tick; readers observe its content as of the talker's most
// recent Talk call for the current tick.
type Voice struct {
	Tag      string
	PortType buffer.PortType
	Buf      *buffer.Buffer
	AtomBuf  *buffer.AtomBuffer
	tick     int64
	ln       int
}

// NewVoice allocates a voice with a freshly sized buffer.
func NewVoice(tag string, portType buffer.PortType, chunkSize int) *Voice {
	v := &Voice{Tag: tag, PortType: portType, tick: -1}
	if portType == buffer.Atom {
		v.AtomBuf = buffer.NewAtom()
	} else {
		v.Buf = buffer.New(portType, chunkSize)
	}
	return v
}

// Tick reports the scheduler tick at which this voice was last computed.
func (v *Voice) Tick() int64 { return v.tick }

// Ln reports how many samples this voice actually produced the last
// time it was computed (see testable property 2 / §4.8's worker-loop
// break-on-zero rule: a voice may produce fewer than the requested
// length).
func (v *Voice) Ln() int { return v.ln }

// MarkComputed records that the voice's content is now current as of
// tick, having produced ln samples.
func (v *Voice) MarkComputed(tick int64, ln int) {
	v.tick = tick
	v.ln = ln
}

// Talk connects one hum (a single typed slot) either to a literal value
// or to another talker's voice. Exactly one of Literal/Source is active;
// Source is non-nil when the hum is wired to a talker's output.
type Talk struct {
	Tag      string
	PortType buffer.PortType
	Min, Max float32
	Literal  float32
	Source   VoiceRef
}

// VoiceRef is the minimal view a Talk needs of the talker it targets:
// enough to resolve a specific voice and to drive that talker's pull.
type VoiceRef interface {
	// VoiceByTag returns the named output voice; talker.Base also
	// returns its first voice when tag is empty.
	VoiceByTag(tag string) (*Voice, bool)
	// Listen pulls the talker to compute up to ln samples of its voices
	// for the given tick, memoizing internally so repeated calls at the
	// same tick are free, and returns the number of samples actually
	// produced (which may be less than ln; never more).
	Listen(tick int64, ln int) (int, error)
}

// IsWired reports whether the talk is connected to another talker
// rather than holding a literal value.
func (t *Talk) IsWired() bool { return t.Source != nil }

// Clamp confines v to the talk's declared range.
func (t *Talk) Clamp(v float32) float32 {
	if v < t.Min {
		return t.Min
	}
	if v > t.Max {
		return t.Max
	}
	return v
}

// SetLiteral assigns a literal value, clamped to range, and disconnects
// any wired source.
func (t *Talk) SetLiteral(v float32) {
	t.Literal = t.Clamp(v)
	t.Source = nil
}

// SetSource wires the talk to another talker's voice.
func (t *Talk) SetSource(src VoiceRef) { t.Source = src }

// listenTalk is the core pull-based memoization check: it asks the
// source talker to compute up to ln samples for the given tick (a
// no-op if it is already current) and returns the number of samples
// actually produced. A literal (unwired) talk always "produces" the
// full requested length, per §4.5: constants return exactly len on
// every call.
func listenTalk(t *Talk, tick int64, ln int) (int, error) {
	if t.Source == nil {
		return ln, nil
	}
	return t.Source.Listen(tick, ln)
}

// Listen drives the talk's source (if any) for the given tick and
// returns the achieved length, without resolving a value or buffer.
// Ear.Listen uses this to find the minimum achieved length across a
// set's hums.
func (t *Talk) Listen(tick int64, ln int) (int, error) {
	return listenTalk(t, tick, ln)
}

// Value resolves the talk's current scalar value for the given tick,
// i.e. the value a Control/Cv-typed hum should read at sample 0, along
// with the achieved length of the pull that produced it.
func (t *Talk) Value(tick int64, ln int) (float32, int, error) {
	if t.Source == nil {
		return t.Literal, ln, nil
	}
	achieved, err := listenTalk(t, tick, ln)
	if err != nil {
		return 0, 0, err
	}
	v, ok := t.Source.VoiceByTag(t.Tag)
	if !ok || v.Buf == nil || v.Buf.Len() == 0 {
		return t.Literal, achieved, nil
	}
	return t.Clamp(v.Buf.At(0)), achieved, nil
}

// AudioBuffer resolves the talk's buffer for the given tick, i.e. the
// buffer an Audio-typed hum should mix in, along with the achieved
// length. Returns nil, ln, nil when the talk is unwired (silence for
// the full requested length).
func (t *Talk) AudioBuffer(tick int64, ln int) (*buffer.Buffer, int, error) {
	if t.Source == nil {
		return nil, ln, nil
	}
	achieved, err := listenTalk(t, tick, ln)
	if err != nil {
		return nil, 0, err
	}
	v, ok := t.Source.VoiceByTag(t.Tag)
	if !ok {
		return nil, achieved, nil
	}
	return v.Buf, achieved, nil
}

// Hum is one named, typed slot of a Set: a position with a declared
// port type, range, and default, holding exactly one Talk.
type Hum struct {
	Tag      string
	PortType buffer.PortType
	Min, Max float32
	Default  float32
	Talk     *Talk
}

// NewHum builds a hum whose talk starts out literal at Default.
func NewHum(tag string, portType buffer.PortType, min, max, def float32) *Hum {
	return &Hum{
		Tag: tag, PortType: portType, Min: min, Max: max, Default: def,
		Talk: &Talk{Tag: tag, PortType: portType, Min: min, Max: max, Literal: def},
	}
}

// Set is an ordered collection of hums, all built from the same stem
// template; sets are what let a set-structured ear grow (e.g. a mixer
// adding another input, an oscillator bank adding another voice) without
// changing the talker's Go type.
type Set struct {
	Hums []*Hum
}

// HumByTag finds a hum by tag within the set.
func (s *Set) HumByTag(tag string) (*Hum, bool) {
	for _, h := range s.Hums {
		if h.Tag == tag {
			return h, true
		}
	}
	return nil, false
}

// Ear is a talker's one input port. A unique ear (NewUniqueEar) holds a
// single set of hums in StemSet; a set-structured ear (NewSetEar) holds
// its sets in Sets and uses StemSet as the template Grow clones.
type Ear struct {
	Tag      string
	Hidden   bool
	StemSet  *Set
	Sets     []*Set
	isSetEar bool
}

// NewUniqueEar builds a single-set ear (the common case: reverb mix,
// filter cutoff, oscillator frequency).
func NewUniqueEar(tag string, hidden bool, hums ...*Hum) *Ear {
	return &Ear{Tag: tag, Hidden: hidden, StemSet: &Set{Hums: hums}}
}

// NewSetEar builds a set-structured ear from a stem template (describing
// the hums of one set) and an initial count of sets.
func NewSetEar(tag string, hidden bool, stem *Set, initialSets int) *Ear {
	e := &Ear{Tag: tag, Hidden: hidden, StemSet: stem, isSetEar: true}
	for i := 0; i < initialSets; i++ {
		e.Sets = append(e.Sets, cloneSet(stem))
	}
	return e
}

// IsSetStructured reports whether the ear holds a growable set collection.
func (e *Ear) IsSetStructured() bool { return e.isSetEar }

// SetsLen reports how many sets a set-structured ear currently holds.
func (e *Ear) SetsLen() int { return len(e.Sets) }

// Grow appends a new set cloned from the stem template and returns it.
func (e *Ear) Grow() (*Set, error) {
	if !e.isSetEar {
		return nil, fmt.Errorf("talk: ear %q is not set-structured", e.Tag)
	}
	s := cloneSet(e.StemSet)
	e.Sets = append(e.Sets, s)
	return s, nil
}

// Shrink removes the set at index i.
func (e *Ear) Shrink(i int) error {
	if !e.isSetEar {
		return fmt.Errorf("talk: ear %q is not set-structured", e.Tag)
	}
	if i < 0 || i >= len(e.Sets) {
		return fmt.Errorf("talk: ear %q has no set at index %d", e.Tag, i)
	}
	e.Sets = append(e.Sets[:i], e.Sets[i+1:]...)
	return nil
}

// Unique returns the single set of a unique ear.
func (e *Ear) Unique() *Set { return e.StemSet }

// Listen pulls every hum's talk across every set of the ear for the
// given tick and returns the minimum achieved length across all of
// them (ln if the ear has no hums at all), so a talker computing ln
// samples of its own voices never reads past what its ears could
// actually produce this tick.
func (e *Ear) Listen(tick int64, ln int) (int, error) {
	achieved := ln
	if err := e.VisitSets(func(_ int, s *Set) error {
		for _, h := range s.Hums {
			a, err := h.Talk.Listen(tick, ln)
			if err != nil {
				return err
			}
			if a < achieved {
				achieved = a
			}
		}
		return nil
	}); err != nil {
		return 0, err
	}
	return achieved, nil
}

// VisitSets calls fn for every set, passing its index and the set; a
// unique ear's single set is passed as index 0.
func (e *Ear) VisitSets(fn func(i int, s *Set) error) error {
	if !e.isSetEar {
		return fn(0, e.StemSet)
	}
	for i, s := range e.Sets {
		if err := fn(i, s); err != nil {
			return err
		}
	}
	return nil
}

func cloneSet(stem *Set) *Set {
	s := &Set{Hums: make([]*Hum, len(stem.Hums))}
	for i, h := range stem.Hums {
		s.Hums[i] = NewHum(h.Tag, h.PortType, h.Min, h.Max, h.Default)
	}
	return s
}
