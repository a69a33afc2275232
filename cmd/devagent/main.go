// Command devagent is a simulated device for the debug server. It runs a
// JavaScript runtime with in-memory storage and serves remote commands the
// way an app would.
//
// Usage:
//
//	go run ./cmd/devagent 'ws://192.168.1.5:8080/debug?session=1&server=...'
//	go run ./cmd/devagent --discover
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/eclipsesource/tabris-js-cli-sub000/internal/agent"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/evaluate"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/mdns"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devagent", flag.ContinueOnError)
	fs.SetOutput(stderr)

	platform := fs.String("platform", "Android", "Platform reported to the host (Android or iOS)")
	model := fs.String("model", "devagent", "Device model reported to the host")
	version := fs.String("version", "3.9.0", "Runtime version reported to the host")
	discover := fs.Bool("discover", false, "Find the debug server via mDNS instead of a URL argument")
	flushMs := fs.Int("flush-ms", 0, "Output flush interval in ms (default: 100)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: devagent [options] <connect-url>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	url := fs.Arg(0)
	if url == "" && *discover {
		found, err := discoverURL(3 * time.Second)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		url = found
	}
	if url == "" {
		fs.Usage()
		return 1
	}

	device := agent.Device{Platform: *platform, Model: *model, Version: *version}
	local := agent.NewMemoryStore()
	secure := agent.NewMemoryStore()

	// The runtime is created first; its console forwards to the agent once
	// it exists.
	var current atomic.Pointer[agent.Agent]
	rt, err := evaluate.NewRuntime(evaluate.WithConsole(func(level protocol.LogLevel, text string) {
		if a := current.Load(); a != nil {
			a.Print(level, text)
			return
		}
		fmt.Fprintf(stdout, "[%s] %s\n", level, text)
	}))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := bindStorage(rt, "localStorage", local); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if device.Platform == protocol.PlatformIOS {
		if err := bindStorage(rt, "secureStorage", secure); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	app := newDemoApp(stdout)
	fmt.Fprintf(stdout, "Connecting to %s...\n", url)

	a, err := agent.New(agent.Options{
		URL:           url,
		Device:        device,
		App:           app,
		LocalStorage:  local,
		SecureStorage: secure,
		Evaluator:     rt,
		FlushInterval: time.Duration(*flushMs) * time.Millisecond,
		Notify: func(text string) {
			fmt.Fprintln(stderr, text)
		},
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	current.Store(a)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	select {
	case <-a.Done():
		fmt.Fprintln(stdout, "Session ended")
	case <-interrupt:
		fmt.Fprintln(stdout, "Interrupted")
		a.Dispose()
	}
	return 0
}

// discoverURL returns the connect URL of the first debug server found.
func discoverURL(timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	hosts, err := mdns.Discover(ctx)
	if err != nil {
		return "", err
	}
	for _, h := range hosts {
		if h.ServerID != "" && h.SessionID > 0 && h.Host != "" {
			return h.URL(), nil
		}
	}
	return "", fmt.Errorf("no debug server found within %v", timeout)
}

// bindStorage exposes a store to scripts with the Web Storage method names.
func bindStorage(rt *evaluate.Runtime, name string, store *agent.MemoryStore) error {
	return rt.Set(name, map[string]interface{}{
		"getItem": func(key string) interface{} {
			if v, ok := store.GetItem(key); ok {
				return v
			}
			return nil
		},
		"setItem":    store.SetItem,
		"removeItem": store.RemoveItem,
		"clear":      store.Clear,
	})
}

// demoApp stands in for the app runtime. It prints what it is asked to do
// and keeps a fixed widget tree.
type demoApp struct {
	mu      sync.Mutex
	out     io.Writer
	toolbar bool
	reloads int
}

func newDemoApp(out io.Writer) *demoApp {
	return &demoApp{out: out}
}

func (d *demoApp) Reload() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reloads++
	fmt.Fprintf(d.out, "Reload requested (%d)\n", d.reloads)
}

func (d *demoApp) ToggleDevToolbar() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.toolbar = !d.toolbar
	state := "hidden"
	if d.toolbar {
		state = "shown"
	}
	fmt.Fprintf(d.out, "Developer toolbar %s\n", state)
}

func (d *demoApp) UITree() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	b.WriteString("ContentView\n")
	b.WriteString("├─ TextView#title\n")
	if d.toolbar {
		b.WriteString("├─ DevToolbar\n")
	}
	b.WriteString("└─ Button#reload\n")
	return strings.TrimRight(b.String(), "\n")
}
