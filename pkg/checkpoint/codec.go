package checkpoint

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/melograph/pkg/config"
	"github.com/haivivi/melograph/pkg/nn"
)

// Binary format version and magic bytes for checkpoint serialization.
var ckptMagic = [4]byte{'M', 'G', 'P', 'H'}

const ckptVersion uint32 = 1

// Write serializes ck to w in a compact binary format.
//
// Parameters are written in sorted name order so the encoding of a given
// checkpoint is byte-stable.
//
// Format overview:
//
//	[4B magic "MGPH"] [4B version] [1B flavor]
//	[4B epoch]
//	[4B runIDLen] [runIDLen bytes run ID]
//	[4B cfgLen] [cfgLen bytes YAML config]
//	[4B numParams]
//	For each parameter:
//	  [4B nameLen] [nameLen bytes name]
//	  [4B rows] [4B cols]
//	  [rows*cols × 8B float64 values]
//	[1B optimizer flag]
//	If optimizer present:
//	  [8B step count]
//	  [4B numEntries]
//	  For each entry:
//	    [4B nameLen] [nameLen bytes name]
//	    [4B len]
//	    [len × 8B float64 first moments]
//	    [len × 8B float64 second moments]
func Write(w io.Writer, ck *Checkpoint) error {
	bw := bufio.NewWriter(w)

	le := binary.LittleEndian
	write := func(v any) error { return binary.Write(bw, le, v) }
	writeBytes := func(b []byte) error {
		if err := write(uint32(len(b))); err != nil {
			return err
		}
		_, err := bw.Write(b)
		return err
	}

	// Header.
	if _, err := bw.Write(ckptMagic[:]); err != nil {
		return fmt.Errorf("checkpoint: write magic: %w", err)
	}
	if err := write(ckptVersion); err != nil {
		return fmt.Errorf("checkpoint: write version: %w", err)
	}
	if err := write(uint8(ck.Flavor)); err != nil {
		return err
	}
	if err := write(uint32(ck.Epoch)); err != nil {
		return err
	}
	if err := writeBytes([]byte(ck.RunID)); err != nil {
		return err
	}

	// Config.
	cfgBytes, err := yaml.Marshal(ck.Config)
	if err != nil {
		return fmt.Errorf("checkpoint: encode config: %w", err)
	}
	if err := writeBytes(cfgBytes); err != nil {
		return err
	}

	// Parameters.
	names := make([]string, 0, len(ck.Params))
	for name := range ck.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := write(uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		p := ck.Params[name]
		if err := writeBytes([]byte(name)); err != nil {
			return err
		}
		if err := write(uint32(p.Rows)); err != nil {
			return err
		}
		if err := write(uint32(p.Cols)); err != nil {
			return err
		}
		if err := write(p.W); err != nil {
			return err
		}
	}

	// Optimizer state.
	if ck.Optimizer == nil {
		if err := write(uint8(0)); err != nil {
			return err
		}
		return bw.Flush()
	}
	if err := write(uint8(1)); err != nil {
		return err
	}
	if err := write(uint64(ck.Optimizer.T)); err != nil {
		return err
	}

	optNames := make([]string, 0, len(ck.Optimizer.M))
	for name := range ck.Optimizer.M {
		optNames = append(optNames, name)
	}
	sort.Strings(optNames)

	if err := write(uint32(len(optNames))); err != nil {
		return err
	}
	for _, name := range optNames {
		m := ck.Optimizer.M[name]
		v := ck.Optimizer.V[name]
		if len(v) != len(m) {
			return fmt.Errorf("checkpoint: optimizer moments for %q have lengths %d and %d", name, len(m), len(v))
		}
		if err := writeBytes([]byte(name)); err != nil {
			return err
		}
		if err := write(uint32(len(m))); err != nil {
			return err
		}
		if err := write(m); err != nil {
			return err
		}
		if err := write(v); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Read deserializes a checkpoint from r.
func Read(r io.Reader) (*Checkpoint, error) {
	br := bufio.NewReader(r)

	le := binary.LittleEndian
	read := func(v any) error { return binary.Read(br, le, v) }
	readBytes := func() ([]byte, error) {
		var n uint32
		if err := read(&n); err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(br, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	// Magic.
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("checkpoint: read magic: %w", err)
	}
	if magic != ckptMagic {
		return nil, fmt.Errorf("checkpoint: invalid magic %q", magic[:])
	}

	// Version.
	var version uint32
	if err := read(&version); err != nil {
		return nil, fmt.Errorf("checkpoint: read version: %w", err)
	}
	if version != ckptVersion {
		return nil, fmt.Errorf("checkpoint: unsupported version %d (want %d)", version, ckptVersion)
	}

	// Flavor.
	var flavor uint8
	if err := read(&flavor); err != nil {
		return nil, err
	}
	if Flavor(flavor) != FlavorFull && Flavor(flavor) != FlavorWeights {
		return nil, fmt.Errorf("checkpoint: unknown flavor %d", flavor)
	}

	var epoch uint32
	if err := read(&epoch); err != nil {
		return nil, err
	}
	runID, err := readBytes()
	if err != nil {
		return nil, err
	}

	// Config.
	cfgBytes, err := readBytes()
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := yaml.Unmarshal(cfgBytes, &cfg); err != nil {
		return nil, fmt.Errorf("checkpoint: decode config: %w", err)
	}

	// Parameters.
	var numParams uint32
	if err := read(&numParams); err != nil {
		return nil, err
	}
	params := make(map[string]*nn.Mat, numParams)
	for i := uint32(0); i < numParams; i++ {
		nameBytes, err := readBytes()
		if err != nil {
			return nil, err
		}
		var rows, cols uint32
		if err := read(&rows); err != nil {
			return nil, err
		}
		if err := read(&cols); err != nil {
			return nil, err
		}
		p := nn.NewMat(int(rows), int(cols))
		if err := read(p.W); err != nil {
			return nil, err
		}
		params[string(nameBytes)] = p
	}

	ck := &Checkpoint{
		Flavor: Flavor(flavor),
		Epoch:  int(epoch),
		RunID:  string(runID),
		Config: cfg,
		Params: params,
	}

	// Optimizer state.
	var optFlag uint8
	if err := read(&optFlag); err != nil {
		return nil, err
	}
	if optFlag == 0 {
		return ck, nil
	}

	var step uint64
	if err := read(&step); err != nil {
		return nil, err
	}
	var numEntries uint32
	if err := read(&numEntries); err != nil {
		return nil, err
	}
	st := &nn.AdamState{
		T: int(step),
		M: make(map[string][]float64, numEntries),
		V: make(map[string][]float64, numEntries),
	}
	for i := uint32(0); i < numEntries; i++ {
		nameBytes, err := readBytes()
		if err != nil {
			return nil, err
		}
		var n uint32
		if err := read(&n); err != nil {
			return nil, err
		}
		m := make([]float64, n)
		if err := read(m); err != nil {
			return nil, err
		}
		v := make([]float64, n)
		if err := read(v); err != nil {
			return nil, err
		}
		st.M[string(nameBytes)] = m
		st.V[string(nameBytes)] = v
	}
	ck.Optimizer = st

	return ck, nil
}
