package notes

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Serialization parameters. The tempo is a fixed placeholder; event
// times are seconds and are converted to ticks at this tempo.
const (
	tempoBPM        = 120
	ticksPerQuarter = 480
	trackName       = "Sample Track"
	midiChannel     = 0
)

// WriteSMF serializes events to path as a standard MIDI file. The data
// is written to a temporary sibling file and renamed into place, so a
// failure mid-write never leaves a truncated file at path.
func WriteSMF(path string, events []Event) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := encodeSMF(tmp, events); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// encodeSMF writes a single-track SMF carrying the track name, the
// tempo, and one note-on/note-off pair per event on channel 0.
func encodeSMF(w io.Writer, events []Event) error {
	clock := smf.MetricTicks(ticksPerQuarter)

	type timed struct {
		tick uint32
		off  bool
		msg  midi.Message
	}
	msgs := make([]timed, 0, 2*len(events))
	for _, ev := range events {
		if ev.Duration <= 0 {
			continue
		}
		vel := ev.Velocity
		if vel == 0 {
			vel = DefaultVelocity
		}
		on := clock.Ticks(tempoBPM, seconds(ev.Start))
		off := clock.Ticks(tempoBPM, seconds(ev.End()))
		if off <= on {
			off = on + 1
		}
		msgs = append(msgs, timed{tick: on, msg: midi.NoteOn(midiChannel, ev.Pitch, vel)})
		msgs = append(msgs, timed{tick: off, off: true, msg: midi.NoteOff(midiChannel, ev.Pitch)})
	}
	// Note-offs sort before note-ons at the same tick so back-to-back
	// events on one pitch stay distinct notes.
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].tick != msgs[j].tick {
			return msgs[i].tick < msgs[j].tick
		}
		return msgs[i].off && !msgs[j].off
	})

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(trackName))
	tr.Add(0, smf.MetaTempo(tempoBPM))
	var at uint32
	for _, m := range msgs {
		tr.Add(m.tick-at, m.msg)
		at = m.tick
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = clock
	s.Tracks = append(s.Tracks, tr)
	_, err := s.WriteTo(w)
	return err
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
