package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipsesource/tabris-js-cli-sub000/internal/agent"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/evaluate"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/server"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunRequiresURL(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage: devagent") {
		t.Fatalf("expected usage, got %q", stderr.String())
	}
}

func TestRunUntilServerStops(t *testing.T) {
	srv := server.NewServer("127.0.0.1:0")
	if err := <-srv.StartAsync(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer srv.Stop()
	url := srv.ConnectURL(srv.Addr(), srv.GetNewSessionID())

	var stdout, stderr lockedBuffer
	code := make(chan int, 1)
	go func() {
		code <- run([]string{"--platform", "iOS", "--model", "Sim", url}, &stdout, &stderr)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !srv.Connected() {
		if time.Now().After(deadline) {
			t.Fatalf("agent did not connect; stderr: %s", stderr.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	device, _ := srv.Device()
	if device.Platform != "iOS" || device.Model != "Sim" {
		t.Fatalf("unexpected device %+v", device)
	}

	srv.Stop()
	select {
	case c := <-code:
		if c != 0 {
			t.Fatalf("expected exit code 0, got %d", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("devagent did not exit after the server stopped")
	}
	if !strings.Contains(stdout.String(), "Session ended") {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestBindStorage(t *testing.T) {
	rt, err := evaluate.NewRuntime()
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	store := agent.NewMemoryStore()
	if err := bindStorage(rt, "localStorage", store); err != nil {
		t.Fatalf("bindStorage failed: %v", err)
	}

	got, err := rt.Evaluate("localStorage.setItem('token', 'abc'); localStorage.getItem('token')")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != "'abc'" {
		t.Fatalf("expected 'abc', got %s", got)
	}
	if v, ok := store.GetItem("token"); !ok || v != "abc" {
		t.Fatalf("store not updated: %q %v", v, ok)
	}

	got, err = rt.Evaluate("localStorage.removeItem('token'); localStorage.getItem('token')")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != "null" {
		t.Fatalf("expected null, got %s", got)
	}
}

func TestDemoApp(t *testing.T) {
	var out bytes.Buffer
	app := newDemoApp(&out)

	if strings.Contains(app.UITree(), "DevToolbar") {
		t.Fatal("toolbar should start hidden")
	}
	app.ToggleDevToolbar()
	if !strings.Contains(app.UITree(), "DevToolbar") {
		t.Fatal("toolbar should be in the tree after toggling")
	}
	app.Reload()
	if !strings.Contains(out.String(), "Developer toolbar shown") || !strings.Contains(out.String(), "Reload requested (1)") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
