package commands

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/melograph/pkg/bilstm"
	"github.com/haivivi/melograph/pkg/checkpoint"
	"github.com/haivivi/melograph/pkg/config"
	"github.com/haivivi/melograph/pkg/storage"
)

// runCmd executes the root command with args, capturing stdout and
// stderr. All flag state is reset afterwards so tests stay independent.
func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	verbose = false
	configPath = ""

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	var outBuf, errBuf bytes.Buffer
	outBuf.ReadFrom(rOut)
	errBuf.ReadFrom(rErr)

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		if stderr == "" {
			stderr = err.Error()
		}
	}

	resetFlags(rootCmd)
	return
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// testConfig keeps CLI fixtures small: 0.2 s clips at 8 kHz with hop
// 256 give every training example 1600/256 + 1 = 7 frames.
func testConfig() config.Config {
	return config.Config{
		SampleRate:   8000,
		HopLength:    256,
		FFTSize:      512,
		NumMels:      6,
		NumCoeffs:    4,
		FeatureType:  config.FeatureMel,
		TargetDur:    0.2,
		InputSize:    6,
		HiddenSize:   4,
		OutputSize:   5,
		BatchSize:    2,
		Epochs:       2,
		LearningRate: 0.01,
		Gamma:        3,
		Alpha:        0.7,
		Patience:     2,
		Seed:         1,
	}
}

// writeTestConfig saves cfg to a temp YAML file and returns its path.
func writeTestConfig(t *testing.T, cfg config.Config) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeWAV(t *testing.T, path string, rate int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

// plantCheckpoint saves a full snapshot under dir whose parameters are
// all zero except a head bias that pushes every frame towards cls.
func plantCheckpoint(t *testing.T, dir string, cfg config.Config, epoch, cls int) string {
	t.Helper()
	m := bilstm.New(bilstm.Config{
		InputSize:  cfg.FeatureDim(),
		HiddenSize: cfg.HiddenSize,
		OutputSize: cfg.OutputSize,
	}, rand.New(rand.NewSource(1)))
	params := m.Params()
	for _, p := range params {
		for i := range p.W {
			p.W[i] = 0
		}
	}
	params["head_b"].W[cls] = 4

	local, err := storage.NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	name := checkpoint.EpochName(cfg, epoch)
	ck := &checkpoint.Checkpoint{
		Flavor: checkpoint.FlavorFull,
		Epoch:  epoch,
		RunID:  "test-run",
		Config: cfg,
		Params: params,
	}
	if err := checkpoint.NewStore(local).Save(context.Background(), name, ck); err != nil {
		t.Fatalf("save %s: %v", name, err)
	}
	return name
}
