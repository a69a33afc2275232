package main

import (
	"bytes"
	"strings"
	"testing"
)

func runWithArgs(args []string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, out, _ := runWithArgs([]string{"tabris"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("expected usage output, got %q", out)
	}
}

func TestRunHelp(t *testing.T) {
	for _, arg := range []string{"help", "--help", "-h"} {
		code, out, _ := runWithArgs([]string{"tabris", arg})
		if code != 0 {
			t.Fatalf("%s: expected exit code 0, got %d", arg, code)
		}
		if !strings.Contains(out, "serve") || !strings.Contains(out, "sessions") {
			t.Fatalf("%s: expected command list, got %q", arg, out)
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	code, out, _ := runWithArgs([]string{"tabris", "nope"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out, "Unknown command") {
		t.Fatalf("expected unknown command output, got %q", out)
	}
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runWithArgs([]string{"tabris", "version"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if strings.TrimSpace(out) != "tabris "+Version {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestServeHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runServe([]string{"--help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	for _, flag := range []string{"-addr", "-heartbeat-ms", "-session-db", "-mdns", "-qr", "-log-file", "-verbose"} {
		if !strings.Contains(stderr.String(), flag) {
			t.Errorf("usage missing %s: %q", flag, stderr.String())
		}
	}
}

func TestServeBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runServe([]string{"--bogus"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestServeMissingConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runServe([]string{"--config", "/nonexistent/config.toml"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "config file not found") {
		t.Fatalf("expected config error, got %q", stderr.String())
	}
}
