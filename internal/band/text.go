// Session text format: spec.md §6's line-oriented grammar for saving
// and loading a band, grounded on original_source/session/src/band.rs's
// Band::make_decs/Band::build (header + '>' attribute lines, grouped by
// reserved kind, built talkers-first then wiring then mixers) and
// track.rs/output.rs for the track and output record shapes.
//
// Each record opens with a header line:
//
//	<model> <id>#<name> [<inline-data>]
//
// followed by zero or more attribute lines:
//
//	> <tag> <value>
//
// where <value> is either a float literal (an ear literal) or
// <ref_id>#<ref_name>[:<voice_tag>] (an ear wiring, or a cross-reference
// to a track/output record for a mixer's own attribute lines). A tag
// may carry a bracketed set index (tag[n]) to address a set-structured
// ear, and an explicit ".<hum>" suffix when the set's hum tag differs
// from the ear's own tag. Lines whose first non-blank character is '/'
// are full-line comments; trailing '; comment' text is stripped from
// every line before parsing.
//
// Three model names are reserved: track, mixer, output (track.KIND,
// mixer.KIND, output.KIND in the original). A mixer record's attribute
// lines name track/output records by reference (tag "track"/"output")
// plus its own master_volume; a track record's attribute lines are
// input (wired, required), gain (literal, optional) and channel_gain
// (literal, repeated once per output channel in file order); an output
// record's inline-data is a space-separated key=value list (kind,
// codec, sample_rate, channel_layout, path).
package band

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/gndl/talkgraph/internal/factory"
	"github.com/gndl/talkgraph/internal/talk"
	"github.com/gndl/talkgraph/internal/talker"
)

const (
	kindTrack  = "track"
	kindMixer  = "mixer"
	kindOutput = "output"
)

// MixerSpec is a session-declared mixer record, resolved against the
// band's talkers but not yet built into a live mixer.Mixer: that last
// step needs package mixer/factory, which band deliberately does not
// import, so it is left to the session package's BuildMixerFromSpec.
type MixerSpec struct {
	Name         string
	MasterVolume float32
	Tracks       []TrackSpec
	Outputs      []OutputSpec
}

// TrackSpec is one mixer track: the talker voice it listens to, its
// overall input gain, and its per-output-channel gains in file order.
type TrackSpec struct {
	Name        string
	SourceID    int64
	VoiceTag    string
	InputGain   float32
	ChannelGain []float32
}

// OutputSpec is one sink declaration: a reserved kind string (file,
// device, null) plus whatever key=value parameters its inline-data
// carried.
type OutputSpec struct {
	Kind   string
	Params map[string]string
}

type attrLine struct {
	tag   string
	value string
}

type record struct {
	kind    string
	mref    string
	id      int64
	name    string
	feature string
	attrs   []attrLine
}

// Parse reads a session text document into a fresh Band, plus any
// mixer records the text declared (nil if none). chunkSize sizes every
// talker's voice buffers and must match the player's configured audio
// chunk size, since voices are not resized after construction.
func Parse(text string, chunkSize int) (*Band, []MixerSpec, error) {
	records, err := scanRecords(text)
	if err != nil {
		return nil, nil, err
	}

	trackRecs := make(map[string]*record)
	mixerRecs := make([]*record, 0)
	outputRecs := make(map[string]*record)
	for _, r := range records {
		switch r.kind {
		case kindTrack:
			trackRecs[r.mref] = r
		case kindMixer:
			mixerRecs = append(mixerRecs, r)
		case kindOutput:
			outputRecs[r.mref] = r
		}
	}

	b := New()
	byMref := make(map[string]int64) // mref -> band id, talkers only

	// Pass 1: construct every talker so cross-references resolve
	// regardless of declaration order.
	for _, r := range records {
		if r.kind == kindTrack || r.kind == kindMixer || r.kind == kindOutput {
			continue
		}
		t, err := factory.Get().MakeTalker(r.kind, chunkSize)
		if err != nil {
			return nil, nil, fmt.Errorf("band: %s: %w", r.mref, err)
		}
		id, err := b.Add(t, r.name)
		if err != nil {
			return nil, nil, fmt.Errorf("band: %s: %w", r.mref, err)
		}
		if r.feature != "" {
			if err := t.SetDataFromString(r.feature); err != nil {
				return nil, nil, fmt.Errorf("band: %s: %w", r.mref, err)
			}
		}
		byMref[r.mref] = id
	}

	// Pass 2: apply every talker's attribute lines as ear wiring or
	// literal, per Band::set_talker_ears.
	for _, r := range records {
		if r.kind == kindTrack || r.kind == kindMixer || r.kind == kindOutput {
			continue
		}
		id := byMref[r.mref]
		for _, a := range r.attrs {
			if err := applyTalkerAttr(b, id, a, byMref); err != nil {
				return nil, nil, fmt.Errorf("band: %s: %w", r.mref, err)
			}
		}
	}

	if _, err := b.Validate(); err != nil {
		return nil, nil, err
	}

	// Pass 3: resolve declared mixer records against the now-complete
	// band and the track/output records they reference.
	var mixers []MixerSpec
	for _, mr := range mixerRecs {
		spec, err := buildMixerSpec(mr, trackRecs, outputRecs, byMref)
		if err != nil {
			return nil, nil, fmt.Errorf("band: %s: %w", mr.mref, err)
		}
		mixers = append(mixers, spec)
	}

	return b, mixers, nil
}

func scanRecords(text string) ([]*record, error) {
	var records []*record
	var current *record
	flush := func() {
		if current != nil {
			records = append(records, current)
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			if current == nil {
				return nil, fmt.Errorf("band: line %d: attribute line before any record header", lineNo)
			}
			fields := strings.Fields(line)
			if len(fields) != 3 {
				return nil, fmt.Errorf("band: line %d: expected '> <tag> <value>', got %q", lineNo, line)
			}
			current.attrs = append(current.attrs, attrLine{tag: fields[1], value: fields[2]})
			continue
		}

		flush()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("band: line %d: expected '<model> <id>#<name> [data]', got %q", lineNo, line)
		}
		hashIdx := strings.IndexByte(fields[1], '#')
		if hashIdx < 0 {
			return nil, fmt.Errorf("band: line %d: malformed id#name %q", lineNo, fields[1])
		}
		id, err := strconv.ParseInt(fields[1][:hashIdx], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("band: line %d: bad id in %q: %w", lineNo, fields[1], err)
		}
		feature := ""
		if len(fields) > 2 {
			feature = strings.Join(fields[2:], " ")
		}
		current = &record{
			kind:    fields[0],
			mref:    fields[1],
			id:      id,
			name:    normalizeName(fields[1][hashIdx+1:]),
			feature: feature,
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("band: scan: %w", err)
	}
	return records, nil
}

// normalizeName folds whitespace in a declared name to '_', per
// spec.md §6 ("`_` and `\t` are normalized to `_` in `name`").
func normalizeName(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ReplaceAll(name, "\t", "_")
}

// stripComment drops a trailing '; ...' annotation and blanks any line
// whose first non-blank character is '/', matching band.rs's full-line
// comment convention alongside spec.md's own ';' example annotations.
func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	if strings.HasPrefix(strings.TrimSpace(line), "/") {
		return ""
	}
	return line
}

// parseTag splits an attribute tag into the ear it addresses, the set
// index for a set-structured ear (0 for a unique ear), and the hum tag
// within that set. The set index and hum tag are both optional:
// "freq" addresses the "freq" hum of the unique "freq" ear; "ins[0]"
// addresses set 0's hum of the same tag as the ear ("ins"); "ins[0].in"
// addresses set 0's "in" hum explicitly, needed whenever a set's hum
// tag differs from its ear's tag (audio_switch's "ins" ear of "in"
// hums, for instance).
func parseTag(tag string) (ear string, setIndex int, hum string, err error) {
	rest := tag
	humTag := ""
	if dot := strings.LastIndexByte(tag, '.'); dot >= 0 {
		rest = tag[:dot]
		humTag = tag[dot+1:]
	}

	lb := strings.IndexByte(rest, '[')
	if lb < 0 {
		ear = rest
	} else {
		rb := strings.IndexByte(rest, ']')
		if rb < lb {
			return "", 0, "", fmt.Errorf("malformed set index in tag %q", tag)
		}
		ear = rest[:lb]
		idx, convErr := strconv.Atoi(rest[lb+1 : rb])
		if convErr != nil {
			return "", 0, "", fmt.Errorf("malformed set index in tag %q: %w", tag, convErr)
		}
		setIndex = idx
	}
	if humTag == "" {
		humTag = ear
	}
	return ear, setIndex, humTag, nil
}

func applyTalkerAttr(b *Band, talkerID int64, a attrLine, byMref map[string]int64) error {
	earTag, setIndex, humTag, err := parseTag(a.tag)
	if err != nil {
		return err
	}
	if v, err := strconv.ParseFloat(a.value, 32); err == nil {
		return b.Unwire(talkerID, earTag, setIndex, humTag, float32(v))
	}
	sourceMref, voiceTag, _ := strings.Cut(a.value, ":")
	sourceID, ok := byMref[sourceMref]
	if !ok {
		return fmt.Errorf("attribute %q: unknown reference %q", a.tag, sourceMref)
	}
	return b.Wire(talkerID, earTag, setIndex, humTag, sourceID, voiceTag)
}

func buildMixerSpec(mr *record, trackRecs, outputRecs map[string]*record, byMref map[string]int64) (MixerSpec, error) {
	spec := MixerSpec{Name: mr.name, MasterVolume: 1}

	for _, a := range mr.attrs {
		switch a.tag {
		case "track":
			tr, ok := trackRecs[a.value]
			if !ok {
				return MixerSpec{}, fmt.Errorf("mixer: no track record %q", a.value)
			}
			ts, err := buildTrackSpec(tr, byMref)
			if err != nil {
				return MixerSpec{}, err
			}
			spec.Tracks = append(spec.Tracks, ts)
		case "output":
			out, ok := outputRecs[a.value]
			if !ok {
				return MixerSpec{}, fmt.Errorf("mixer: no output record %q", a.value)
			}
			outSpec, err := buildOutputSpec(out)
			if err != nil {
				return MixerSpec{}, err
			}
			spec.Outputs = append(spec.Outputs, outSpec)
		case "master_volume":
			v, err := strconv.ParseFloat(a.value, 32)
			if err != nil {
				return MixerSpec{}, fmt.Errorf("mixer: bad master_volume %q: %w", a.value, err)
			}
			spec.MasterVolume = float32(v)
		default:
			return MixerSpec{}, fmt.Errorf("mixer: unknown attribute %q", a.tag)
		}
	}
	return spec, nil
}

func buildTrackSpec(tr *record, byMref map[string]int64) (TrackSpec, error) {
	spec := TrackSpec{Name: tr.name, InputGain: 1}
	haveInput := false

	for _, a := range tr.attrs {
		switch a.tag {
		case "input":
			mref, voiceTag, _ := strings.Cut(a.value, ":")
			id, ok := byMref[mref]
			if !ok {
				return TrackSpec{}, fmt.Errorf("track %s: no talker %q", tr.mref, mref)
			}
			spec.SourceID, spec.VoiceTag, haveInput = id, voiceTag, true
		case "gain":
			v, err := strconv.ParseFloat(a.value, 32)
			if err != nil {
				return TrackSpec{}, fmt.Errorf("track %s: gain must be a literal: %w", tr.mref, err)
			}
			spec.InputGain = float32(v)
		case "channel_gain":
			v, err := strconv.ParseFloat(a.value, 32)
			if err != nil {
				return TrackSpec{}, fmt.Errorf("track %s: channel_gain must be a literal: %w", tr.mref, err)
			}
			spec.ChannelGain = append(spec.ChannelGain, float32(v))
		default:
			return TrackSpec{}, fmt.Errorf("track %s: unknown attribute %q", tr.mref, a.tag)
		}
	}
	if !haveInput {
		return TrackSpec{}, fmt.Errorf("track %s: missing input attribute", tr.mref)
	}
	return spec, nil
}

func buildOutputSpec(out *record) (OutputSpec, error) {
	params := make(map[string]string)
	kind := ""
	for _, tok := range strings.Fields(out.feature) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return OutputSpec{}, fmt.Errorf("output %s: malformed inline-data token %q, expected key=value", out.mref, tok)
		}
		if k == "kind" {
			kind = v
			continue
		}
		params[k] = v
	}
	return OutputSpec{Kind: kind, Params: params}, nil
}

// Serialize renders a band to the session text format. Only talker
// records round-trip: mixer/track/output declarations are a session's
// static playback layout, not part of the live graph a band edits, so
// they are not retained after Parse and are left out of Serialize.
func Serialize(b *Band) string {
	var out strings.Builder
	for i, t := range b.Talkers() {
		if i > 0 {
			out.WriteString("\n")
		}
		fmt.Fprintf(&out, "%s %d#%s", t.Model(), t.ID(), t.Name())
		if d := t.DataString(); d != "" {
			fmt.Fprintf(&out, " %s", d)
		}
		out.WriteString("\n")

		for _, ear := range t.Ears() {
			_ = ear.VisitSets(func(setIdx int, s *talk.Set) error {
				for _, h := range s.Hums {
					tag := h.Tag
					if ear.IsSetStructured() {
						tag = fmt.Sprintf("%s[%d].%s", ear.Tag, setIdx, h.Tag)
					}
					if h.Talk.IsWired() {
						if src, ok := h.Talk.Source.(talker.Talker); ok {
							fmt.Fprintf(&out, "> %s %d#%s:%s\n", tag, src.ID(), src.Name(), h.Talk.Tag)
						}
					} else if h.Talk.Literal != h.Default {
						fmt.Fprintf(&out, "> %s %g\n", tag, h.Talk.Literal)
					}
				}
				return nil
			})
		}
	}
	return out.String()
}
