package cli

import (
	"strings"
	"testing"
)

// plain is an attribute-free style set so rendered output is byte-exact.
var plain = Styles{}

func TestTableAlignsColumns(t *testing.T) {
	got := Table(plain,
		[]string{"NAME", "EPOCH", "SIZE"},
		[][]string{
			{"model_mel_g3_a70_001.ckpt", "1", "1.2 MiB"},
			{"final.ckpt", "-", "1.2 MiB"},
		})

	want := strings.Join([]string{
		"NAME                       EPOCH  SIZE",
		"model_mel_g3_a70_001.ckpt  1      1.2 MiB",
		"final.ckpt                 -      1.2 MiB",
		"",
	}, "\n")
	if got != want {
		t.Fatalf("Table output:\n%q\nwant:\n%q", got, want)
	}
}

func TestTableWideCellGrowsColumn(t *testing.T) {
	got := Table(plain,
		[]string{"A", "B"},
		[][]string{{"wide-cell", "x"}})
	lines := strings.Split(got, "\n")
	if lines[0] != "A          B" {
		t.Fatalf("header = %q, want column sized to the widest cell", lines[0])
	}
}

func TestTableShortAndLongRows(t *testing.T) {
	got := Table(plain,
		[]string{"A", "B"},
		[][]string{
			{"only-a"},
			{"a", "b", "ignored"},
		})
	lines := strings.Split(got, "\n")
	if lines[1] != "only-a  " {
		t.Fatalf("short row = %q", lines[1])
	}
	if lines[2] != "a       b" {
		t.Fatalf("long row = %q", lines[2])
	}
}

func TestTableNoRows(t *testing.T) {
	got := Table(plain, []string{"NAME"}, nil)
	if got != "NAME\n" {
		t.Fatalf("Table with no rows = %q", got)
	}
}
