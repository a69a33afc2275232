// Package console turns terminal input into debug commands.
//
// Plain lines are sent to the device for evaluation, one at a time: the
// prompt is disabled when an evaluation is sent and enabled again when the
// device answers or disconnects. Lines typed meanwhile are queued. Lines
// starting with a dot are console commands; control keys are shortcuts for
// the most common ones.
package console

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/eclipsesource/tabris-js-cli-sub000/internal/terminal"
)

// NoDeviceNotice is printed when a command cannot be routed to a device.
const NoDeviceNotice = "no device connected"

// Debugger is the command surface of the debug server. Every method
// returns false when no device is connected.
type Debugger interface {
	Evaluate(source string) bool
	ReloadApp() bool
	ToggleDevToolbar() bool
	PrintUITree() bool
	ClearStorage() bool
}

// Storage saves and loads device storage snapshots. Implementations print
// their own notices.
type Storage interface {
	Save(path string) bool
	Load(path string) bool
}

// Prompt toggles the input prompt.
type Prompt interface {
	EnablePrompt()
	DisablePrompt()
}

type command struct {
	usage string
	help  string
	run   func(c *Console, arg string)
}

// commands is filled in init because the help command lists it.
var commands map[string]command

func init() {
	commands = map[string]command{
		"help":          {".help", "Print this help", (*Console).printHelp},
		"save":          {".save <file>", "Save the storage of the device to a file", (*Console).save},
		"load":          {".load <file>", "Replace the storage of the device with a file", (*Console).load},
		"reload":        {".reload", "Reload the app", func(c *Console, _ string) { c.reload() }},
		"toolbar":       {".toolbar", "Show or hide the developer toolbar", func(c *Console, _ string) { c.toggleDevToolbar() }},
		"tree":          {".tree", "Print the UI tree", func(c *Console, _ string) { c.printUITree() }},
		"clear-storage": {".clear-storage", "Clear the storage of the device", func(c *Console, _ string) { c.clearStorage() }},
		"exit":          {".exit", "Stop the debug server", func(c *Console, _ string) { c.quit() }},
	}
}

var keyBindings = []struct {
	key  terminal.Key
	help string
	run  func(c *Console)
}{
	{terminal.KeyCtrlR, "Reload the app", (*Console).reload},
	{terminal.KeyCtrlT, "Show or hide the developer toolbar", (*Console).toggleDevToolbar},
	{terminal.KeyCtrlP, "Print the UI tree", (*Console).printUITree},
	{terminal.KeyCtrlX, "Clear the storage of the device", (*Console).clearStorage},
	{terminal.KeyCtrlC, "Stop the debug server", (*Console).quit},
}

// Console implements terminal.InputHandler.
type Console struct {
	debugger Debugger
	storage  Storage
	prompt   Prompt
	out      terminal.Output

	// onQuit is called for Ctrl+C and .exit.
	onQuit func()

	mu      sync.Mutex
	pending bool
	queue   []string
}

// New creates a console. onQuit may be nil.
func New(debugger Debugger, storage Storage, prompt Prompt, out terminal.Output, onQuit func()) *Console {
	if out == nil {
		out = terminal.Discard
	}
	return &Console{
		debugger: debugger,
		storage:  storage,
		prompt:   prompt,
		out:      out,
		onQuit:   onQuit,
	}
}

// Pending reports whether an evaluation is waiting for its action-response.
func (c *Console) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Line handles one line of input.
func (c *Console) Line(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if strings.HasPrefix(line, ".") {
		c.runCommand(line[1:])
		return
	}

	c.mu.Lock()
	if c.pending {
		c.queue = append(c.queue, line)
		c.mu.Unlock()
		return
	}
	c.pending = true
	c.mu.Unlock()

	c.evaluate(line)
}

// Keypress handles a control key.
func (c *Console) Keypress(key terminal.Key) {
	for _, b := range keyBindings {
		if b.key == key {
			b.run(c)
			return
		}
	}
	log.Printf("console: unbound key %s", key)
}

// PromptReady ends the pending evaluation. It is installed as the server's
// prompt handler and runs when the device answers or the connection drops.
func (c *Console) PromptReady() {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	var next string
	if len(c.queue) > 0 {
		next = c.queue[0]
		c.queue = c.queue[1:]
		c.pending = true
	}
	c.mu.Unlock()

	if next != "" {
		c.evaluate(next)
		return
	}
	c.prompt.EnablePrompt()
}

// evaluate sends source while c.pending is set. The prompt is disabled
// first because the answer may arrive before Evaluate returns. If no device
// takes it, the pending state is released right away.
func (c *Console) evaluate(source string) {
	c.prompt.DisablePrompt()
	if c.debugger.Evaluate(source) {
		return
	}
	c.out.Error(NoDeviceNotice)

	c.mu.Lock()
	c.pending = false
	dropped := len(c.queue)
	c.queue = nil
	c.mu.Unlock()
	if dropped > 0 {
		log.Printf("console: dropped %d queued lines", dropped)
	}
	c.prompt.EnablePrompt()
}

func (c *Console) runCommand(input string) {
	name, arg, _ := strings.Cut(input, " ")
	cmd, ok := commands[name]
	if !ok {
		c.out.Error(fmt.Sprintf("Unknown command .%s, type .help for a list of commands", name))
		return
	}
	cmd.run(c, strings.TrimSpace(arg))
}

func (c *Console) printHelp(string) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(&b, "%-16s %s\n", cmd.usage, cmd.help)
	}
	b.WriteString("\n")
	for i, k := range keyBindings {
		fmt.Fprintf(&b, "%-16s %s", k.key, k.help)
		if i < len(keyBindings)-1 {
			b.WriteString("\n")
		}
	}
	c.out.InfoBlock("Commands", b.String())
}

func (c *Console) save(path string) {
	if path == "" {
		c.out.Error("Usage: " + commands["save"].usage)
		return
	}
	c.storage.Save(path)
}

func (c *Console) load(path string) {
	if path == "" {
		c.out.Error("Usage: " + commands["load"].usage)
		return
	}
	c.storage.Load(path)
}

func (c *Console) reload() {
	c.report(c.debugger.ReloadApp())
}

func (c *Console) toggleDevToolbar() {
	c.report(c.debugger.ToggleDevToolbar())
}

func (c *Console) printUITree() {
	c.report(c.debugger.PrintUITree())
}

func (c *Console) clearStorage() {
	c.report(c.debugger.ClearStorage())
}

func (c *Console) quit() {
	if c.onQuit != nil {
		c.onQuit()
	}
}

func (c *Console) report(sent bool) {
	if !sent {
		c.out.Error(NoDeviceNotice)
	}
}
