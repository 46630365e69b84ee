package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Note is one annotated note span from a label CSV, in sample indices
// at the dataset's native rate.
type Note struct {
	StartSample int
	EndSample   int // exclusive
	Pitch       int // MIDI note number
}

// ReadLabels parses a MusicNet-style annotation CSV.
//
// Columns are matched by header name: start_time or start_sample, end_time
// or end_sample (both hold sample indices), and note (MIDI pitch). Other
// columns, such as instrument or beat positions, are ignored.
func ReadLabels(path string) ([]Note, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	notes, err := parseLabels(f)
	if err != nil {
		return nil, fmt.Errorf("dataset: %s: %w", path, err)
	}
	return notes, nil
}

func parseLabels(r io.Reader) ([]Note, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty label file")
	}
	if err != nil {
		return nil, err
	}

	start, end, note := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "start_time", "start_sample":
			start = i
		case "end_time", "end_sample":
			end = i
		case "note":
			note = i
		}
	}
	if start < 0 || end < 0 || note < 0 {
		return nil, fmt.Errorf("label header %v lacks start/end/note columns", header)
	}

	var notes []Note
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		n, err := parseNote(rec, start, end, note)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func parseNote(rec []string, si, ei, ni int) (Note, error) {
	s, err := intField(rec, si)
	if err != nil {
		return Note{}, err
	}
	e, err := intField(rec, ei)
	if err != nil {
		return Note{}, err
	}
	p, err := intField(rec, ni)
	if err != nil {
		return Note{}, err
	}
	if s < 0 {
		return Note{}, fmt.Errorf("negative start sample %d", s)
	}
	if e <= s {
		return Note{}, fmt.Errorf("note span %d..%d is empty", s, e)
	}
	if p < 0 || p > 127 {
		return Note{}, fmt.Errorf("bad MIDI note %d", p)
	}
	return Note{StartSample: s, EndSample: e, Pitch: p}, nil
}

// intField reads an integer cell, accepting integral floats like "5120.0".
func intField(rec []string, i int) (int, error) {
	if i >= len(rec) {
		return 0, fmt.Errorf("missing column %d", i+1)
	}
	cell := strings.TrimSpace(rec[i])
	if v, err := strconv.Atoi(cell); err == nil {
		return v, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || v != math.Trunc(v) {
		return 0, fmt.Errorf("bad integer %q", cell)
	}
	return int(v), nil
}

// Rasterize converts note spans to a frames × classes activity matrix.
//
// Frame t covers samples [t*hop, (t+1)*hop); a note activates every frame
// its span overlaps. Pitches outside [1, classes) are skipped. Frames left
// without any active pitch get the rest class, column 0, so silence is a
// trained target rather than an all-zero row.
func Rasterize(notes []Note, frames, hop, classes int) [][]float64 {
	m := make([][]float64, frames)
	for t := range m {
		m[t] = make([]float64, classes)
	}

	for _, n := range notes {
		if n.Pitch < 1 || n.Pitch >= classes {
			continue
		}
		lo := n.StartSample / hop
		hi := (n.EndSample - 1) / hop
		if hi >= frames {
			hi = frames - 1
		}
		for t := lo; t <= hi; t++ {
			m[t][n.Pitch] = 1
		}
	}

	for t := range m {
		rest := true
		for _, v := range m[t][1:] {
			if v != 0 {
				rest = false
				break
			}
		}
		if rest {
			m[t][0] = 1
		}
	}
	return m
}
