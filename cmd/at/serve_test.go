package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestServeHelp(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"serve", "--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("serve --help failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "--config") {
		t.Errorf("expected help to show the --config flag, got: %s", out)
	}
}

func TestServeMissingConfig(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"serve", "--config", filepath.Join(t.TempDir(), "absent.yaml")})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}
