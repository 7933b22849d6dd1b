// Package band implements the talker graph a session plays: an
// identity-keyed collection of talkers and their wiring, with the
// acyclicity and dangling-reference checks the original performs when
// building or modifying a band.
//
// Grounded on original_source/session/src/band.rs's Band::make (walks
// every talker's ears checking for cycles and unresolved references
// before a band is accepted) and the Operation vocabulary spec.md §4.9
// assigns to band edits (add/remove/rename talker, wire/unwire hum,
// grow/shrink a set-structured ear).
package band

import (
	"fmt"
	"sort"

	"github.com/gndl/talkgraph/internal/talk"
	"github.com/gndl/talkgraph/internal/talker"
)

// Band is the graph of talkers a session's player schedules. Talkers
// are keyed by a stable int64 id assigned at creation; names are a
// separate, user-facing, renameable label kept unique within the band.
type Band struct {
	talkers map[int64]talker.Talker
	order   []int64 // insertion order, preserved for stable serialization
	nextID  int64
	strict  bool // if true, Remove/SupTalker refuses a depended-on talker instead of literal-replacing
}

// SetStrictRemoval toggles the band's removal policy. The default
// (false) is spec.md's mandated literal-replacement: removing a talker
// still depended on replaces every offending Talk with a literal at its
// hum's default value instead of failing. Setting true restores the
// alternative the Design Notes call out as a configurable option: hard
// reject while any dependent Talk remains wired.
func (b *Band) SetStrictRemoval(strict bool) { b.strict = strict }

// New returns an empty band.
func New() *Band {
	return &Band{talkers: make(map[int64]talker.Talker)}
}

// Add inserts t, assigning it the next identifier and the given name.
// Returns an error if name collides with an existing talker.
func (b *Band) Add(t talker.Talker, name string) (int64, error) {
	if _, exists := b.ByName(name); exists {
		return 0, fmt.Errorf("band: talker name %q already in use", name)
	}
	b.nextID++
	id := b.nextID
	t.SetIdentity(id, name)
	b.talkers[id] = t
	b.order = append(b.order, id)
	return id, nil
}

// Remove deletes the talker with the given id. By default (see
// SetStrictRemoval) a talker still depended on is not rejected: every
// Talk still wired to it is first literal-replaced at its hum's default
// value, per spec.md's Design Notes ("This spec mandates
// literal-replacement; alternative strict reject should be
// configurable") and the SupTalker operation in §4.9.
func (b *Band) Remove(id int64) error {
	victim, ok := b.talkers[id]
	if !ok {
		return fmt.Errorf("band: no talker with id %d", id)
	}

	var dependents []talker.Talker
	for other := range b.talkers {
		if other == id {
			continue
		}
		if b.talkers[other].DependsOn(victim) {
			dependents = append(dependents, b.talkers[other])
		}
	}

	if len(dependents) > 0 {
		if b.strict {
			return fmt.Errorf("band: talker %d still depends on %d", dependents[0].ID(), id)
		}
		for _, t := range dependents {
			literalReplace(t, victim)
		}
	}

	delete(b.talkers, id)
	for i, oid := range b.order {
		if oid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// SupTalker is spec.md §4.9's name for the same operation Remove
// implements; kept as an alias so callers that think in the spec's
// operation vocabulary (and the control surface's API) can use either.
func (b *Band) SupTalker(id int64) error { return b.Remove(id) }

// literalReplace reverts every Talk of t that is wired to victim back
// to its hum's declared default value, leaving t otherwise intact.
func literalReplace(t talker.Talker, victim talker.Talker) {
	for _, ear := range t.Ears() {
		_ = ear.VisitSets(func(_ int, s *talk.Set) error {
			for _, h := range s.Hums {
				if !h.Talk.IsWired() {
					continue
				}
				if src, ok := h.Talk.Source.(talker.Talker); ok && src.ID() == victim.ID() {
					h.Talk.SetLiteral(h.Default)
				}
			}
			return nil
		})
	}
}

// Rename changes a talker's user-facing name.
func (b *Band) Rename(id int64, name string) error {
	t, ok := b.talkers[id]
	if !ok {
		return fmt.Errorf("band: no talker with id %d", id)
	}
	if existing, exists := b.ByName(name); exists && existing.ID() != id {
		return fmt.Errorf("band: talker name %q already in use", name)
	}
	t.SetIdentity(id, name)
	return nil
}

// ByID looks up a talker by identifier.
func (b *Band) ByID(id int64) (talker.Talker, bool) {
	t, ok := b.talkers[id]
	return t, ok
}

// ByName looks up a talker by its current name.
func (b *Band) ByName(name string) (talker.Talker, bool) {
	for _, t := range b.talkers {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Talkers returns every talker in stable insertion order.
func (b *Band) Talkers() []talker.Talker {
	out := make([]talker.Talker, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.talkers[id])
	}
	return out
}

// Wire connects a hum (identified by talker id, ear tag, set index, hum
// tag) to another talker's voice. Refuses a connection that would
// create a cycle.
func (b *Band) Wire(talkerID int64, earTag string, setIndex int, humTag string, sourceID int64, voiceTag string) error {
	t, ok := b.talkers[talkerID]
	if !ok {
		return fmt.Errorf("band: no talker with id %d", talkerID)
	}
	src, ok := b.talkers[sourceID]
	if !ok {
		return fmt.Errorf("band: no talker with id %d", sourceID)
	}
	if src.DependsOn(t) || src == t {
		return fmt.Errorf("band: wiring %d -> %d would create a cycle", talkerID, sourceID)
	}
	h, err := humAt(t, earTag, setIndex, humTag)
	if err != nil {
		return err
	}
	v, ok := src.VoiceByTag(voiceTag)
	if !ok {
		return fmt.Errorf("band: talker %d has no voice %q", sourceID, voiceTag)
	}
	if v.PortType != h.Talk.PortType {
		return fmt.Errorf("band: wiring %w: voice %q is %s, hum %q is %s",
			ErrPortTypeMismatch, voiceTag, v.PortType, humTag, h.Talk.PortType)
	}
	ref, ok := src.(talk.VoiceRef)
	if !ok {
		return fmt.Errorf("band: talker %d cannot act as a wiring source", sourceID)
	}
	h.Talk.Tag = voiceTag
	h.Talk.SetSource(ref)
	return nil
}

// ErrPortTypeMismatch is wrapped into the error Wire returns when a
// voice's port type does not match the target hum's declared port
// type (testable property 4 / scenario S4): a Cv output may not be
// wired into an Audio input, and so on.
var ErrPortTypeMismatch = fmt.Errorf("source/target port type mismatch")

// Unwire reverts a hum to its literal value.
func (b *Band) Unwire(talkerID int64, earTag string, setIndex int, humTag string, literal float32) error {
	t, ok := b.talkers[talkerID]
	if !ok {
		return fmt.Errorf("band: no talker with id %d", talkerID)
	}
	h, err := humAt(t, earTag, setIndex, humTag)
	if err != nil {
		return err
	}
	h.Talk.SetLiteral(literal)
	return nil
}

// Grow appends a new set to a set-structured ear.
func (b *Band) Grow(talkerID int64, earTag string) error {
	t, ok := b.talkers[talkerID]
	if !ok {
		return fmt.Errorf("band: no talker with id %d", talkerID)
	}
	ear, ok := t.EarByTag(earTag)
	if !ok {
		return fmt.Errorf("band: talker %d has no ear %q", talkerID, earTag)
	}
	_, err := ear.Grow()
	return err
}

// Shrink removes a set from a set-structured ear.
func (b *Band) Shrink(talkerID int64, earTag string, setIndex int) error {
	t, ok := b.talkers[talkerID]
	if !ok {
		return fmt.Errorf("band: no talker with id %d", talkerID)
	}
	ear, ok := t.EarByTag(earTag)
	if !ok {
		return fmt.Errorf("band: talker %d has no ear %q", talkerID, earTag)
	}
	return ear.Shrink(setIndex)
}

func humAt(t talker.Talker, earTag string, setIndex int, humTag string) (*talk.Hum, error) {
	ear, ok := t.EarByTag(earTag)
	if !ok {
		return nil, fmt.Errorf("band: talker %d has no ear %q", t.ID(), earTag)
	}
	var set *talk.Set
	if ear.IsSetStructured() {
		if setIndex < 0 || setIndex >= ear.SetsLen() {
			return nil, fmt.Errorf("band: ear %q has no set %d", earTag, setIndex)
		}
		set = ear.Sets[setIndex]
	} else {
		set = ear.Unique()
	}
	h, ok := set.HumByTag(humTag)
	if !ok {
		return nil, fmt.Errorf("band: set has no hum %q", humTag)
	}
	return h, nil
}

// Diagnostic describes a non-fatal structural concern found by Validate,
// e.g. a talker whose voice is wired nowhere (silently discarded audio).
type Diagnostic struct {
	TalkerID int64
	Message  string
}

// Validate walks the band checking for cycles (fatal) and unreferenced
// talkers (a warning diagnostic), grounded on band.rs's own Band::make
// checks but softened to a reportable list instead of a hard failure,
// since an unreferenced talker is valid mid-edit, just probably not
// what the user meant to leave behind.
func (b *Band) Validate() ([]Diagnostic, error) {
	if err := b.checkCycles(); err != nil {
		return nil, err
	}
	return b.checkOrphans(), nil
}

func (b *Band) checkCycles() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int64]int, len(b.talkers))
	var visit func(id int64) error
	visit = func(id int64) error {
		color[id] = gray
		t := b.talkers[id]
		var cycleErr error
		for _, ear := range t.Ears() {
			_ = ear.VisitSets(func(_ int, s *talk.Set) error {
				for _, h := range s.Hums {
					if !h.Talk.IsWired() {
						continue
					}
					srcTalker, ok := h.Talk.Source.(talker.Talker)
					if !ok {
						continue
					}
					sid := srcTalker.ID()
					switch color[sid] {
					case gray:
						cycleErr = fmt.Errorf("band: cycle detected through talker %d", sid)
					case white:
						if err := visit(sid); err != nil {
							cycleErr = err
						}
					}
				}
				return nil
			})
			if cycleErr != nil {
				return cycleErr
			}
		}
		color[id] = black
		return nil
	}
	ids := b.sortedIDs()
	for _, id := range ids {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Band) checkOrphans() []Diagnostic {
	referenced := make(map[int64]bool)
	for _, t := range b.talkers {
		for _, ear := range t.Ears() {
			_ = ear.VisitSets(func(_ int, s *talk.Set) error {
				for _, h := range s.Hums {
					if h.Talk.IsWired() {
						if src, ok := h.Talk.Source.(talker.Talker); ok {
							referenced[src.ID()] = true
						}
					}
				}
				return nil
			})
		}
	}
	var diags []Diagnostic
	for _, id := range b.sortedIDs() {
		t := b.talkers[id]
		if t.IsHidden() {
			continue
		}
		if !referenced[id] {
			diags = append(diags, Diagnostic{TalkerID: id, Message: fmt.Sprintf("talker %q is not wired to anything", t.Name())})
		}
	}
	return diags
}

func (b *Band) sortedIDs() []int64 {
	ids := make([]int64, 0, len(b.talkers))
	for id := range b.talkers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
