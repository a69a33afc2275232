// Package snapshot saves device storage to files and loads it back.
//
// Snapshot files are the JSON form of a storage message. Files are written
// indented; when read, comments and trailing commas are tolerated so that
// hand-edited snapshots load.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	// tidwall/jsonc strips comments and trailing commas from hand-edited files.
	"github.com/tidwall/jsonc"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/terminal"
)

// NoAppNotice is printed when a transfer is requested without a device.
const NoAppNotice = "no app connected"

// Device is the part of the debug server a transfer talks to.
type Device interface {
	RequestStorage() bool
	LoadStorage(snapshot protocol.StorageSnapshot, path string) bool
}

// Transfer runs save and load requests against the connected device.
type Transfer struct {
	device Device
	out    terminal.Output

	mu          sync.Mutex
	pendingPath string
}

// NewTransfer creates a transfer that prints its results to out.
func NewTransfer(device Device, out terminal.Output) *Transfer {
	if out == nil {
		out = terminal.Discard
	}
	return &Transfer{device: device, out: out}
}

// Save asks the device for its storage and writes it to path once it
// arrives. Another Save before the answer replaces the target path.
// Returns false without requesting anything if no device is connected.
func (t *Transfer) Save(path string) bool {
	t.mu.Lock()
	previous := t.pendingPath
	t.pendingPath = path
	t.mu.Unlock()

	if !t.device.RequestStorage() {
		t.mu.Lock()
		t.pendingPath = previous
		t.mu.Unlock()
		t.out.Error(NoAppNotice)
		return false
	}
	return true
}

// Pending returns the path of an unanswered Save, if any.
func (t *Transfer) Pending() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingPath, t.pendingPath != ""
}

// HandleStorage completes a pending Save. It is installed as the server's
// storage handler.
func (t *Transfer) HandleStorage(snapshot protocol.StorageSnapshot) {
	t.mu.Lock()
	path := t.pendingPath
	t.pendingPath = ""
	t.mu.Unlock()

	if path == "" {
		log.Printf("snapshot: storage received without a pending save")
		return
	}
	if err := WriteFile(path, snapshot); err != nil {
		t.out.Error(apperrors.GetMessage(err))
		return
	}
	t.out.Info(fmt.Sprintf("Storage saved to %s", path))
}

// Load reads a snapshot file and sends it to the device. The device checks
// the platform; the file is only checked to exist and parse.
func (t *Transfer) Load(path string) bool {
	snapshot, err := ReadFile(path)
	if err != nil {
		t.out.Error(apperrors.GetMessage(err))
		return false
	}
	if !t.device.LoadStorage(snapshot, path) {
		t.out.Error(NoAppNotice)
		return false
	}
	return true
}

// ReadFile parses a snapshot file. A snapshot must name its platform.
func ReadFile(path string) (protocol.StorageSnapshot, error) {
	var snapshot protocol.StorageSnapshot

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return snapshot, apperrors.SnapshotNotFound(path)
		}
		return snapshot, apperrors.SnapshotInvalid(path, err)
	}

	if err := json.Unmarshal(jsonc.ToJSON(data), &snapshot); err != nil {
		return snapshot, apperrors.SnapshotInvalid(path, err)
	}
	if snapshot.Platform == "" {
		return snapshot, apperrors.SnapshotInvalid(path, fmt.Errorf("platform is missing"))
	}
	if snapshot.LocalStorage == nil {
		snapshot.LocalStorage = map[string]string{}
	}
	return snapshot, nil
}

// WriteFile writes snapshot as indented JSON, creating parent directories.
func WriteFile(path string, snapshot protocol.StorageSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSnapshotWriteFailed, "encode snapshot", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperrors.Wrap(apperrors.CodeSnapshotWriteFailed, fmt.Sprintf("create %s", dir), err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return apperrors.Wrap(apperrors.CodeSnapshotWriteFailed, fmt.Sprintf("write %s", path), err)
	}
	return nil
}
