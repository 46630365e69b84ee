package commands

import (
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	stdout, _, code := runCmd(t, "version")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "melograph") {
		t.Fatalf("expected 'melograph', got: %s", stdout)
	}
}

func TestVersionVerbose(t *testing.T) {
	stdout, _, code := runCmd(t, "version", "--verbose")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "go:") {
		t.Fatalf("expected go runtime line, got: %s", stdout)
	}
	if !strings.Contains(stdout, "built-in defaults") {
		t.Fatalf("expected config source line, got: %s", stdout)
	}
}
