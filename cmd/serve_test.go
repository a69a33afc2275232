package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipsesource/tabris-js-cli-sub000/internal/agent"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/config"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/evaluate"
)

// syncBuffer is a bytes.Buffer safe for the server and console goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns the output with terminal styling removed.
func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ansiPattern.ReplaceAllString(b.buf.String(), "")
}

var (
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	urlPattern  = regexp.MustCompile(`ws://\S+`)
)

func waitForOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in output:\n%s", want, out.String())
}

type serveRun struct {
	input  *io.PipeWriter
	stdout *syncBuffer
	stderr *syncBuffer
	code   chan int
}

func startServe(t *testing.T, args ...string) *serveRun {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	pr, pw := io.Pipe()
	previous := serveInput
	serveInput = pr
	t.Cleanup(func() {
		serveInput = previous
		pw.Close()
	})

	r := &serveRun{input: pw, stdout: &syncBuffer{}, stderr: &syncBuffer{}, code: make(chan int, 1)}
	go func() {
		r.code <- runServe(append([]string{"--addr", "127.0.0.1:0"}, args...), r.stdout, r.stderr)
	}()
	return r
}

func (r *serveRun) send(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(r.input, line+"\n"); err != nil {
		t.Fatalf("write input failed: %v", err)
	}
}

func (r *serveRun) wait(t *testing.T) int {
	t.Helper()
	select {
	case code := <-r.code:
		return code
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not exit, output:\n%s", r.stdout.String())
		return -1
	}
}

func TestServeEndToEnd(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sessions.db")
	r := startServe(t, "--session-db", db, "--heartbeat-ms", "1000")

	waitForOutput(t, r.stdout, "Connect URL:")
	connectURL := urlPattern.FindString(r.stdout.String())
	if connectURL == "" {
		t.Fatalf("no connect URL in output:\n%s", r.stdout.String())
	}
	if !strings.Contains(connectURL, "session=1") {
		t.Fatalf("expected first session in %q", connectURL)
	}

	rt, err := evaluate.NewRuntime()
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	a, err := agent.New(agent.Options{
		URL:           connectURL,
		Device:        agent.Device{Platform: "Android", Model: "Pixel 7", Version: "3.9.0"},
		Evaluator:     rt,
		FlushInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("agent.New failed: %v", err)
	}
	defer a.Dispose()

	waitForOutput(t, r.stdout, `Android device "Pixel 7" connected`)

	r.send(t, "6*7")
	waitForOutput(t, r.stdout, "<- 42")

	r.send(t, "throw new Error('boom')")
	waitForOutput(t, r.stdout, "Error: boom")

	r.send(t, ".exit")
	if code := r.wait(t); code != 0 {
		t.Fatalf("expected exit code 0, got %d; stderr: %s", code, r.stderr.String())
	}

	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("agent was not disposed by the normal close")
	}

	var stdout, stderr bytes.Buffer
	if code := runSessions([]string{"--session-db", db}, &stdout, &stderr); code != 0 {
		t.Fatalf("sessions exit code %d: %s", code, stderr.String())
	}
	listing := stdout.String()
	if !strings.Contains(listing, "Android Pixel 7") {
		t.Errorf("listing missing device:\n%s", listing)
	}
	if !strings.Contains(listing, "server_stopped") {
		t.Errorf("listing missing close reason:\n%s", listing)
	}
}

func TestServeWithoutDevice(t *testing.T) {
	r := startServe(t, "--no-journal")

	waitForOutput(t, r.stdout, "Connect URL:")
	r.send(t, "1+1")
	waitForOutput(t, r.stdout, "no device connected")

	r.send(t, ".nope")
	waitForOutput(t, r.stdout, "Unknown command .nope")

	// EOF on input stops the server.
	r.input.Close()
	if code := r.wait(t); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

func TestServeQRCode(t *testing.T) {
	r := startServe(t, "--no-journal", "--qr")
	waitForOutput(t, r.stdout, "Connect URL:")
	// Half-block characters make up the code.
	waitForOutput(t, r.stdout, "█")
	r.input.Close()
	r.wait(t)
}

func TestServeLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "tabris.log")
	r := startServe(t, "--no-journal", "--log-file", logPath)
	waitForOutput(t, r.stdout, "Connect URL:")
	r.input.Close()
	r.wait(t)

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	if !strings.Contains(string(data), "server: listening on") {
		t.Fatalf("expected server log lines, got %q", data)
	}
}

func TestServeAddressInUse(t *testing.T) {
	first := startServe(t, "--no-journal")
	waitForOutput(t, first.stdout, "Connect URL:")
	addr := regexp.MustCompile(`ws://([^/]+)/`).FindStringSubmatch(first.stdout.String())[1]

	var stdout, stderr bytes.Buffer
	code := runServe([]string{"--no-journal", "--addr", addr}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "failed to listen") {
		t.Fatalf("expected listen error, got %q", stderr.String())
	}

	first.input.Close()
	first.wait(t)
}

func TestMergeServeConfig(t *testing.T) {
	fileCfg := &config.Config{
		Addr:        "0.0.0.0:9000",
		HeartbeatMs: 2000,
		SessionDB:   "/tmp/a.db",
		MdnsEnabled: true,
		QR:          true,
		Verbose:     true,
	}

	cfg := &ServeConfig{Addr: "127.0.0.1:1234", QR: false}
	mergeServeConfig(cfg, fileCfg, map[string]bool{"addr": true, "qr": true})

	if cfg.Addr != "127.0.0.1:1234" {
		t.Errorf("Addr = %q, flag should win", cfg.Addr)
	}
	if cfg.HeartbeatMs != 2000 || cfg.SessionDB != "/tmp/a.db" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.QR {
		t.Error("explicit --qr=false should override the file")
	}
	if !cfg.MdnsEnabled || !cfg.Verbose {
		t.Error("file booleans should apply when flags are not given")
	}

	empty := &ServeConfig{}
	mergeServeConfig(empty, &config.Config{}, map[string]bool{})
	if empty.Addr != config.DefaultAddr {
		t.Errorf("Addr = %q, want default %q", empty.Addr, config.DefaultAddr)
	}
}

func TestResolvePublicHost(t *testing.T) {
	if got := resolvePublicHost("example.local:8080", "0.0.0.0:8080"); got != "example.local:8080" {
		t.Errorf("configured host should win, got %q", got)
	}
	if got := resolvePublicHost("", "127.0.0.1:8080"); got != "127.0.0.1:8080" {
		t.Errorf("specific listen address should be kept, got %q", got)
	}
	got := resolvePublicHost("", "0.0.0.0:8080")
	if strings.HasPrefix(got, "0.0.0.0") || !strings.HasSuffix(got, ":8080") {
		t.Errorf("wildcard address should be replaced, got %q", got)
	}
	if got := resolvePublicHost("", "[::]:8080"); strings.HasPrefix(got, "[::]") {
		t.Errorf("IPv6 wildcard should be replaced, got %q", got)
	}
}

func TestAddrPort(t *testing.T) {
	if got := addrPort("127.0.0.1:8080"); got != 8080 {
		t.Errorf("addrPort = %d, want 8080", got)
	}
	if got := addrPort("nonsense"); got != 0 {
		t.Errorf("addrPort = %d, want 0", got)
	}
}
