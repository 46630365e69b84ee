package notes

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gitlab.com/gomidi/midi/v2/smf"
)

// rest builds a frame row of n classes where class 0 wins.
func rest(n int) []float64 {
	row := make([]float64, n)
	row[0] = 0.9
	return row
}

// voiced builds a frame row of n classes where class cls wins.
func voiced(n, cls int) []float64 {
	row := rest(n)
	row[cls] = 0.95
	return row
}

func TestDecodeEmpty(t *testing.T) {
	events, dropped := Decode(nil, 0.25)
	if len(events) != 0 || dropped != 0 {
		t.Fatalf("got %d events, %d dropped for empty input", len(events), dropped)
	}
}

func TestDecodeAllRests(t *testing.T) {
	probs := [][]float64{rest(128), rest(128), rest(128)}
	events, dropped := Decode(probs, 0.25)
	if len(events) != 0 || dropped != 0 {
		t.Fatalf("got %d events, %d dropped for silence", len(events), dropped)
	}
}

func TestDecodeBasic(t *testing.T) {
	probs := [][]float64{
		voiced(128, 60),
		rest(128),
		voiced(128, 60),
		voiced(128, 64),
	}
	events, dropped := Decode(probs, 0.25)
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}

	want := []Event{
		{Pitch: 60, Start: 0.0, Duration: 0.25, Velocity: 100},
		{Pitch: 60, Start: 0.5, Duration: 0.25, Velocity: 100},
		{Pitch: 64, Start: 0.75, Duration: 0.25, Velocity: 100},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, ev, want[i])
		}
	}
}

// Adjacent frames on the same pitch stay separate one-frame events.
func TestDecodeDoesNotMerge(t *testing.T) {
	probs := [][]float64{voiced(128, 72), voiced(128, 72), voiced(128, 72)}
	events, _ := Decode(probs, 0.1)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 separate frames", len(events))
	}
	for i, ev := range events {
		if ev.Duration != 0.1 {
			t.Errorf("event %d duration = %g, want 0.1", i, ev.Duration)
		}
	}
}

func TestDecodeDropsOutOfRange(t *testing.T) {
	probs := [][]float64{
		voiced(200, 150),
		voiced(200, 127),
		voiced(200, 128),
	}
	events, dropped := Decode(probs, 0.25)
	if dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
	if len(events) != 1 || events[0].Pitch != 127 {
		t.Fatalf("events = %+v, want a single pitch-127 event", events)
	}
}

func TestDecodeTieTakesLowestClass(t *testing.T) {
	row := rest(16)
	row[3] = 0.95
	row[7] = 0.95
	events, _ := Decode([][]float64{row}, 0.25)
	if len(events) != 1 || events[0].Pitch != 3 {
		t.Fatalf("events = %+v, want a single pitch-3 event", events)
	}
}

func TestDecodeOrdered(t *testing.T) {
	probs := make([][]float64, 40)
	for t2 := range probs {
		probs[t2] = voiced(128, 1+(t2*37)%127)
	}
	events, _ := Decode(probs, 0.0116)
	for i := 1; i < len(events); i++ {
		a, b := events[i-1], events[i]
		if a.Start > b.Start || (a.Start == b.Start && a.Pitch > b.Pitch) {
			t.Fatalf("events %d and %d out of order: %+v before %+v", i-1, i, a, b)
		}
	}
}

// collectNotes replays a track and returns note messages with their
// absolute ticks.
type notedMsg struct {
	off      bool
	channel  uint8
	key      uint8
	velocity uint8
	tick     uint32
}

func collectNotes(t *testing.T, data []byte) (string, float64, []notedMsg) {
	t.Helper()
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(s.Tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(s.Tracks))
	}

	var name string
	var bpm float64
	var notes []notedMsg
	var abs uint32
	for _, evt := range s.Tracks[0] {
		abs += evt.Delta
		var ch, key, vel uint8
		switch {
		case evt.Message.GetMetaTrackName(&name):
		case evt.Message.GetMetaTempo(&bpm):
		case evt.Message.GetNoteOn(&ch, &key, &vel):
			notes = append(notes, notedMsg{channel: ch, key: key, velocity: vel, tick: abs})
		case evt.Message.GetNoteOff(&ch, &key, &vel):
			notes = append(notes, notedMsg{off: true, channel: ch, key: key, tick: abs})
		}
	}
	return name, bpm, notes
}

func TestWriteSMFRoundTrip(t *testing.T) {
	events := []Event{
		{Pitch: 60, Start: 0.0, Duration: 0.25, Velocity: 100},
		{Pitch: 60, Start: 0.5, Duration: 0.25, Velocity: 100},
		{Pitch: 64, Start: 0.75, Duration: 0.25, Velocity: 100},
	}
	path := filepath.Join(t.TempDir(), "out.mid")
	if err := WriteSMF(path, events); err != nil {
		t.Fatalf("WriteSMF: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	name, bpm, notes := collectNotes(t, data)
	if name != "Sample Track" {
		t.Errorf("track name = %q, want %q", name, "Sample Track")
	}
	if bpm != 120 {
		t.Errorf("tempo = %g, want 120", bpm)
	}

	// 480 ticks per quarter at 120 BPM puts 960 ticks in a second.
	want := []notedMsg{
		{off: false, key: 60, velocity: 100, tick: 0},
		{off: true, key: 60, tick: 240},
		{off: false, key: 60, velocity: 100, tick: 480},
		{off: true, key: 60, tick: 720},
		{off: false, key: 64, velocity: 100, tick: 720},
		{off: true, key: 64, tick: 960},
	}
	if len(notes) != len(want) {
		t.Fatalf("got %d note messages, want %d: %+v", len(notes), len(want), notes)
	}
	for i, n := range notes {
		if n.channel != 0 {
			t.Errorf("message %d on channel %d, want 0", i, n.channel)
		}
		if n.off != want[i].off || n.key != want[i].key || n.tick != want[i].tick {
			t.Errorf("message %d = %+v, want %+v", i, n, want[i])
		}
		if !n.off && n.velocity != want[i].velocity {
			t.Errorf("message %d velocity = %d, want %d", i, n.velocity, want[i].velocity)
		}
	}
}

func TestWriteSMFNoEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silent.mid")
	if err := WriteSMF(path, nil); err != nil {
		t.Fatalf("WriteSMF: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	name, bpm, notes := collectNotes(t, data)
	if name != "Sample Track" || bpm != 120 {
		t.Errorf("metadata = %q/%g, want Sample Track/120", name, bpm)
	}
	if len(notes) != 0 {
		t.Fatalf("got %d note messages in a silent file", len(notes))
	}
}

func TestWriteSMFLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	if err := WriteSMF(filepath.Join(dir, "a.mid"), []Event{{Pitch: 60, Start: 0, Duration: 0.5}}); err != nil {
		t.Fatalf("WriteSMF: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Fatalf("temp file %q left behind", e.Name())
		}
	}
}

func TestEncodeSkipsZeroDuration(t *testing.T) {
	var buf bytes.Buffer
	err := encodeSMF(&buf, []Event{{Pitch: 60, Start: 1, Duration: 0}})
	if err != nil {
		t.Fatalf("encodeSMF: %v", err)
	}
	_, _, notes := collectNotes(t, buf.Bytes())
	if len(notes) != 0 {
		t.Fatalf("zero-duration event produced %d note messages", len(notes))
	}
}

// Default velocity fills in when a caller leaves the field zero, since
// a velocity-0 note-on would read as a note-off.
func TestEncodeDefaultVelocity(t *testing.T) {
	var buf bytes.Buffer
	if err := encodeSMF(&buf, []Event{{Pitch: 60, Start: 0, Duration: 0.5}}); err != nil {
		t.Fatalf("encodeSMF: %v", err)
	}
	_, _, notes := collectNotes(t, buf.Bytes())
	if len(notes) != 2 {
		t.Fatalf("got %d note messages, want 2", len(notes))
	}
	if notes[0].velocity != DefaultVelocity {
		t.Fatalf("velocity = %d, want %d", notes[0].velocity, DefaultVelocity)
	}
}
