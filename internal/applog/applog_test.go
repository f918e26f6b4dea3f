package applog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	if err := Init(Options{Dir: dir, Level: "info"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info("scan.done", "tracked", 3, "archived", 1)
	Error("archive.save", errors.New("disk full"), "tab", 42)
	Debug("scan.debug", "hidden", true)
	Close()

	data, err := os.ReadFile(filepath.Join(dir, "tabecho.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"event":"scan.done"`) {
		t.Errorf("missing scan.done event:\n%s", out)
	}
	if !strings.Contains(out, `"archived":1`) {
		t.Errorf("int field not preserved:\n%s", out)
	}
	if !strings.Contains(out, `"err":"disk full"`) {
		t.Errorf("missing err field:\n%s", out)
	}
	if strings.Contains(out, "scan.debug") {
		t.Errorf("debug event logged at info level:\n%s", out)
	}
}

func TestRotatesLargeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tabecho.log")
	if err := os.WriteFile(path, make([]byte, maxFileSize+1), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Init(Options{Dir: dir}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Close()

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > maxFileSize {
		t.Errorf("log file not rotated, size %d", info.Size())
	}
}

func TestUninitializedIsNoop(t *testing.T) {
	Close()
	Info("nothing", "k", "v")
	Error("nothing", errors.New("x"))
}

func TestQuoteTruncates(t *testing.T) {
	long := strings.Repeat("a", maxValueLen+10)
	got := quote(long)
	if !strings.HasSuffix(got, truncSuffix) {
		t.Errorf("expected truncation suffix, got %q", got[len(got)-5:])
	}
}
