package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
)

type fakeDevice struct {
	connected bool
	requests  int
	loaded    []protocol.StorageSnapshot
	paths     []string
}

func (d *fakeDevice) RequestStorage() bool {
	if !d.connected {
		return false
	}
	d.requests++
	return true
}

func (d *fakeDevice) LoadStorage(snapshot protocol.StorageSnapshot, path string) bool {
	if !d.connected {
		return false
	}
	d.loaded = append(d.loaded, snapshot)
	d.paths = append(d.paths, path)
	return true
}

type recordingOutput struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (r *recordingOutput) Log(string)               {}
func (r *recordingOutput) Warn(string)              {}
func (r *recordingOutput) Debug(string)             {}
func (r *recordingOutput) Message(string)           {}
func (r *recordingOutput) ReturnValue(string)       {}
func (r *recordingOutput) InfoBlock(string, string) {}

func (r *recordingOutput) Info(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, text)
}

func (r *recordingOutput) Error(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, text)
}

func TestSaveWithoutDevice(t *testing.T) {
	dev := &fakeDevice{}
	out := &recordingOutput{}
	tr := NewTransfer(dev, out)

	if tr.Save(filepath.Join(t.TempDir(), "s.json")) {
		t.Fatal("expected Save to fail without device")
	}
	if dev.requests != 0 {
		t.Fatalf("expected no request, got %d", dev.requests)
	}
	if len(out.errors) != 1 || out.errors[0] != NoAppNotice {
		t.Fatalf("expected %q notice, got %v", NoAppNotice, out.errors)
	}
	if _, ok := tr.Pending(); ok {
		t.Fatal("failed save must not stay pending")
	}
}

func TestSaveWritesSnapshotOnArrival(t *testing.T) {
	dev := &fakeDevice{connected: true}
	out := &recordingOutput{}
	tr := NewTransfer(dev, out)
	path := filepath.Join(t.TempDir(), "nested", "storage.json")

	if !tr.Save(path) {
		t.Fatal("expected Save to be requested")
	}
	if dev.requests != 1 {
		t.Fatalf("expected one request, got %d", dev.requests)
	}
	if pending, ok := tr.Pending(); !ok || pending != path {
		t.Fatalf("expected pending %q, got %q", path, pending)
	}

	tr.HandleStorage(protocol.StorageSnapshot{
		Platform:      "iOS",
		LocalStorage:  map[string]string{"a": "1"},
		SecureStorage: map[string]string{"s": "2"},
	})

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got.Platform != "iOS" || got.LocalStorage["a"] != "1" || got.SecureStorage["s"] != "2" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if len(out.infos) != 1 || !strings.Contains(out.infos[0], path) {
		t.Fatalf("expected success notice, got %v", out.infos)
	}
	if _, ok := tr.Pending(); ok {
		t.Fatal("save should no longer be pending")
	}
}

func TestUnsolicitedStorageIgnored(t *testing.T) {
	out := &recordingOutput{}
	tr := NewTransfer(&fakeDevice{connected: true}, out)
	tr.HandleStorage(protocol.StorageSnapshot{Platform: "Android"})
	if len(out.infos) != 0 || len(out.errors) != 0 {
		t.Fatalf("expected no output, got %v %v", out.infos, out.errors)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dev := &fakeDevice{connected: true}
	out := &recordingOutput{}
	tr := NewTransfer(dev, out)

	if tr.Load(filepath.Join(t.TempDir(), "missing.json")) {
		t.Fatal("expected Load to fail")
	}
	if len(dev.loaded) != 0 {
		t.Fatal("nothing should be sent for a missing file")
	}
	if len(out.errors) != 1 || !strings.Contains(out.errors[0], "does not exist") {
		t.Fatalf("unexpected errors %v", out.errors)
	}
}

func TestLoadSendsParsedSnapshot(t *testing.T) {
	dev := &fakeDevice{connected: true}
	tr := NewTransfer(dev, &recordingOutput{})
	path := filepath.Join(t.TempDir(), "storage.json")
	content := `{
  // recorded on a test phone
  "platform": "Android",
  "localStorage": {"a": "1",},
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if !tr.Load(path) {
		t.Fatal("expected Load to succeed")
	}
	if len(dev.loaded) != 1 || dev.loaded[0].LocalStorage["a"] != "1" || dev.paths[0] != path {
		t.Fatalf("unexpected load %+v %v", dev.loaded, dev.paths)
	}
}

func TestLoadWithoutDevice(t *testing.T) {
	out := &recordingOutput{}
	tr := NewTransfer(&fakeDevice{}, out)
	path := filepath.Join(t.TempDir(), "storage.json")
	if err := WriteFile(path, protocol.StorageSnapshot{Platform: "Android"}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if tr.Load(path) {
		t.Fatal("expected Load to fail without device")
	}
	if len(out.errors) != 1 || out.errors[0] != NoAppNotice {
		t.Fatalf("unexpected errors %v", out.errors)
	}
}

func TestReadFileInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "hello"},
		{"no platform", `{"localStorage": {}}`},
		{"wrong type", `{"platform": "iOS", "localStorage": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			_, err := ReadFile(path)
			if !apperrors.IsCode(err, apperrors.CodeSnapshotInvalid) {
				t.Fatalf("expected %s, got %v", apperrors.CodeSnapshotInvalid, err)
			}
		})
	}
}
