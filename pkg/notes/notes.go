// Package notes turns per-frame pitch probabilities into discrete note
// events and serializes them as standard MIDI files.
//
// Decoding is deliberately simple: each frame is resolved to at most one
// pitch by arg-max over the class scores, with class 0 reserved for
// silence. Adjacent frames predicting the same pitch stay separate
// events of one frame each; no merging is performed.
package notes

import (
	"sort"
)

// DefaultVelocity is the key-down velocity assigned to decoded events.
const DefaultVelocity = 100

// Event is a single decoded note.
//
// Start and Duration are in seconds. Pitch is a MIDI key number in
// [1, 127]; 0 never appears in decoder output.
type Event struct {
	Pitch    uint8
	Start    float64
	Duration float64
	Velocity uint8
}

// End returns the time at which the note stops sounding.
func (e Event) End() float64 { return e.Start + e.Duration }

// Decode converts a T×N probability matrix into note events, one event
// per voiced frame of length frameDur seconds. For each frame the class
// with the highest score wins; class 0 means rest and emits nothing.
//
// Arg-max indices above 127 cannot be represented as MIDI keys. Such
// frames are dropped rather than clamped, and the count of dropped
// frames is returned so callers can report it.
//
// The returned events are ordered by start time, then by pitch.
func Decode(probs [][]float64, frameDur float64) ([]Event, int) {
	var events []Event
	dropped := 0
	for t, row := range probs {
		cls := argmax(row)
		if cls <= 0 {
			continue
		}
		if cls > 127 {
			dropped++
			continue
		}
		events = append(events, Event{
			Pitch:    uint8(cls),
			Start:    float64(t) * frameDur,
			Duration: frameDur,
			Velocity: DefaultVelocity,
		})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Start != events[j].Start {
			return events[i].Start < events[j].Start
		}
		return events[i].Pitch < events[j].Pitch
	})
	return events, dropped
}

// argmax returns the index of the largest value, or -1 for an empty row.
// Ties resolve to the lowest index.
func argmax(row []float64) int {
	best := -1
	for i, v := range row {
		if best < 0 || v > row[best] {
			best = i
		}
	}
	return best
}
