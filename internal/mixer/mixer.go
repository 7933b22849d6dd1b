// Package mixer implements the engine's audio summing stage: a set of
// tracks, each listening to one or more talker ears, accumulated into a
// master buffer and written out to every attached sink.
//
// Grounded on original_source/session/src/mixer.rs's Mixer::come_out
// (listen every track's ears for the tick, let the first set of each
// track assign its channels and every subsequent set accumulate, then
// apply master volume and clamp) and session/src/track.rs's Track::set/
// Track::add (per-channel gain application, assign vs. accumulate).
package mixer

import (
	"fmt"

	"github.com/gndl/talkgraph/internal/buffer"
	"github.com/gndl/talkgraph/internal/talk"
)

// Track listens to one ear (of a talker elsewhere in the band) and
// contributes its audio, gain-scaled per output channel, into the
// mixer's master buffer.
type Track struct {
	Name        string
	Ear         *talk.Ear
	InputGain   float32
	ChannelGain []float32 // one gain per output channel this track feeds
	Muted       bool
}

// NewTrack builds a track targeting the given ear with unity gains on
// every channel.
func NewTrack(name string, ear *talk.Ear, channels int) *Track {
	gains := make([]float32, channels)
	for i := range gains {
		gains[i] = 1
	}
	return &Track{Name: name, Ear: ear, InputGain: 1, ChannelGain: gains}
}

// computeInputGain scales a sample by the track's overall input gain.
func (t *Track) computeInputGain(sample float32) float32 { return sample * t.InputGain }

// set writes this track's contribution into master, overwriting
// existing content; used for the first set considered in a mix pass so
// downstream tracks still get pristine silence-or-signal. Grounded on
// Track::set in track.rs.
func (t *Track) set(master []float32, buf *buffer.Buffer, ln int, channels int) {
	for c := 0; c < channels; c++ {
		gain := t.ChannelGain[c]
		for i := 0; i < ln; i++ {
			var s float32
			if buf != nil {
				s = t.computeInputGain(buf.At(i))
			}
			master[i*channels+c] = s * gain
		}
	}
}

// add accumulates this track's contribution into master without
// clearing prior content. Grounded on Track::add in track.rs.
func (t *Track) add(master []float32, buf *buffer.Buffer, ln int, channels int) {
	if buf == nil {
		return
	}
	for c := 0; c < channels; c++ {
		gain := t.ChannelGain[c]
		for i := 0; i < ln; i++ {
			master[i*channels+c] += t.computeInputGain(buf.At(i)) * gain
		}
	}
}

// Mixer sums every track's listened signal into a master buffer each
// tick, applies master volume, clamps to the audio range, and hands the
// result to every attached Sink.
type Mixer struct {
	Tracks       []*Track
	Channels     int
	MasterVolume float32
	master       []float32
	sinks        []Sink
}

// Sink receives interleaved master-buffer frames once per tick.
type Sink interface {
	Write(frames []float32, channels int) error
}

// New builds a mixer with the given channel count and a chunk-sized
// master buffer.
func New(channels, chunkSize int) *Mixer {
	return &Mixer{Channels: channels, MasterVolume: 1, master: make([]float32, chunkSize*channels)}
}

// AddTrack appends a track to the mix.
func (m *Mixer) AddTrack(t *Track) { m.Tracks = append(m.Tracks, t) }

// AddSink attaches an output sink.
func (m *Mixer) AddSink(s Sink) { m.sinks = append(m.sinks, s) }

// ComeOut pulls every track's ear for tick, sums up to ln samples per
// channel and writes the clamped master frames to every sink, returning
// the number of samples actually produced (the minimum achieved length
// across every unmuted track's ears; ln if the mixer has no tracks).
// Grounded literally on Mixer::come_out's per-set assign-then-accumulate
// order: the first set listened across all tracks writes (Track::set)
// and every later set, of the same or a later track, accumulates
// (Track::add); only after every
// track's every set has contributed is master volume applied and the
// result clamped. Per §4.8's worker-loop rule, a zero return tells the
// player this mixer has nothing left to produce.
func (m *Mixer) ComeOut(tick int64, ln int) (int, error) {
	achieved := ln
	for _, tr := range m.Tracks {
		if tr.Muted {
			continue
		}
		if err := tr.Ear.VisitSets(func(_ int, s *talk.Set) error {
			if len(s.Hums) == 0 {
				return nil
			}
			h := s.Hums[0]
			_, a, err := h.Talk.AudioBuffer(tick, ln)
			if err != nil {
				return err
			}
			if a < achieved {
				achieved = a
			}
			return nil
		}); err != nil {
			return 0, fmt.Errorf("mixer: track %q: %w", tr.Name, err)
		}
	}
	if achieved <= 0 {
		return 0, nil
	}

	need := achieved * m.Channels
	if len(m.master) < need {
		m.master = make([]float32, need)
	}
	master := m.master[:need]
	for i := range master {
		master[i] = 0
	}

	first := true
	for _, tr := range m.Tracks {
		if tr.Muted {
			continue
		}
		if err := tr.Ear.VisitSets(func(_ int, s *talk.Set) error {
			if len(s.Hums) == 0 {
				return nil
			}
			h := s.Hums[0]
			buf, _, err := h.Talk.AudioBuffer(tick, achieved)
			if err != nil {
				return err
			}
			if first {
				tr.set(master, buf, achieved, m.Channels)
				first = false
			} else {
				tr.add(master, buf, achieved, m.Channels)
			}
			return nil
		}); err != nil {
			return 0, fmt.Errorf("mixer: track %q: %w", tr.Name, err)
		}
	}

	vol := m.MasterVolume
	for i := range master {
		master[i] = buffer.Clamp(master[i] * vol)
	}

	for _, sink := range m.sinks {
		if err := sink.Write(master, m.Channels); err != nil {
			return 0, fmt.Errorf("mixer: sink write: %w", err)
		}
	}
	return achieved, nil
}
