package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "freshstart.log")
	var stderr bytes.Buffer

	out, err := Open(Options{Path: path, MaxSizeMB: 1, Stderr: &stderr})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	out.Logger("sync").Printf("flushed %d datasets", 3)
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "[sync] ") || !strings.Contains(string(data), "flushed 3 datasets") {
		t.Errorf("log file = %q", data)
	}
	if stderr.Len() != 0 {
		t.Errorf("stderr written without verbose: %q", stderr.String())
	}
}

func TestOpen_Verbose(t *testing.T) {
	var stderr bytes.Buffer
	out, err := Open(Options{Verbose: true, Stderr: &stderr})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	out.Logger("daemon").Print("started")
	if !strings.Contains(stderr.String(), "[daemon] ") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOpen_Discard(t *testing.T) {
	out, err := Open(Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if n, err := out.Write([]byte("x")); n != 1 || err != nil {
		t.Errorf("Write() = %d, %v", n, err)
	}
}
