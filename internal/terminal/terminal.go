// Package terminal implements the developer-facing console of the debug host.
//
// Output is written in one of several styles (log, info, warn, error, debug,
// message, return value, info block). Input arrives as line events and, when
// stdin is a TTY, keypress events for control-key shortcuts. Interactive
// input uses raw mode and the line editor from golang.org/x/term so that
// device output can be printed without clobbering the line being typed.
package terminal

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// DefaultPrompt is shown while the console accepts input.
const DefaultPrompt = ">> "

// Output is the set of user-facing output channels.
type Output interface {
	Log(text string)
	Info(text string)
	Warn(text string)
	Error(text string)
	Debug(text string)
	Message(text string)
	InfoBlock(title, body string)
	ReturnValue(text string)
}

// Key is a control key pressed while the line editor is active.
type Key rune

// Control keys that are delivered as keypress events instead of being
// handled by the line editor.
const (
	KeyCtrlC Key = 0x03
	KeyCtrlP Key = 0x10
	KeyCtrlR Key = 0x12
	KeyCtrlT Key = 0x14
	KeyCtrlX Key = 0x18
)

// String returns the conventional caret name of the key (e.g. "Ctrl+R").
func (k Key) String() string {
	if k > 0 && k < 0x20 {
		return "Ctrl+" + string(rune('A'+k-1))
	}
	return string(rune(k))
}

// InputHandler receives user input events.
type InputHandler interface {
	Line(line string)
	Keypress(key Key)
}

// Terminal writes styled output and reads user input.
type Terminal struct {
	// mu serializes writes so lines from different goroutines never interleave.
	mu sync.Mutex

	in  io.Reader
	out io.Writer

	// editor is the raw-mode line editor. Nil until Run starts on a TTY.
	editor *term.Terminal

	// restore holds the terminal state to restore on Close.
	restore *term.State
	fd      int

	prompt        string
	promptEnabled bool

	styles styles
}

// New creates a terminal reading from in and writing to out.
func New(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:            in,
		out:           out,
		prompt:        DefaultPrompt,
		promptEnabled: true,
		styles:        newStyles(),
	}
}

// Interactive reports whether input comes from a TTY.
func (t *Terminal) Interactive() bool {
	f, ok := t.in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run reads input until EOF and dispatches it to h. On a TTY the terminal is
// switched to raw mode for the duration; Close restores it.
func (t *Terminal) Run(h InputHandler) error {
	if !t.Interactive() {
		return t.runLines(h)
	}

	f := t.in.(*os.File)
	t.fd = int(f.Fd())
	state, err := term.MakeRaw(t.fd)
	if err != nil {
		return t.runLines(h)
	}

	keys := make(chan Key, 16)
	defer close(keys)
	go func() {
		for k := range keys {
			h.Keypress(k)
		}
	}()

	// The line editor binds some control keys itself, so shortcut keys are
	// taken out of the byte stream before it sees them.
	editor := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{&keyFilter{r: t.in, keys: keys}, t.out}, t.currentPrompt())

	t.mu.Lock()
	t.editor = editor
	t.restore = state
	t.mu.Unlock()

	for {
		line, err := editor.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		h.Line(line)
	}
}

// shortcutKeys are delivered as keypress events instead of input bytes.
var shortcutKeys = map[byte]Key{
	byte(KeyCtrlC): KeyCtrlC,
	byte(KeyCtrlP): KeyCtrlP,
	byte(KeyCtrlR): KeyCtrlR,
	byte(KeyCtrlT): KeyCtrlT,
	byte(KeyCtrlX): KeyCtrlX,
}

// keyFilter removes shortcut keys from raw input and sends them on keys.
type keyFilter struct {
	r    io.Reader
	keys chan<- Key
}

func (f *keyFilter) Read(p []byte) (int, error) {
	for {
		n, err := f.r.Read(p)
		kept := 0
		for _, b := range p[:n] {
			if k, ok := shortcutKeys[b]; ok {
				f.keys <- k
				continue
			}
			p[kept] = b
			kept++
		}
		if kept > 0 || err != nil {
			return kept, err
		}
	}
}

func (t *Terminal) runLines(h InputHandler) error {
	scanner := bufio.NewScanner(t.in)
	for scanner.Scan() {
		h.Line(scanner.Text())
	}
	return scanner.Err()
}

// Close restores the terminal state changed by Run.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.restore == nil {
		return nil
	}
	err := term.Restore(t.fd, t.restore)
	t.restore = nil
	t.editor = nil
	return err
}

// EnablePrompt shows the prompt again after an evaluation completed.
func (t *Terminal) EnablePrompt() {
	t.setPrompt(true)
}

// DisablePrompt hides the prompt while an evaluation is pending.
func (t *Terminal) DisablePrompt() {
	t.setPrompt(false)
}

// PromptEnabled reports whether the prompt is currently shown.
func (t *Terminal) PromptEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.promptEnabled
}

func (t *Terminal) setPrompt(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.promptEnabled = enabled
	if t.editor != nil {
		t.editor.SetPrompt(t.currentPromptLocked())
	}
}

func (t *Terminal) currentPrompt() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentPromptLocked()
}

func (t *Terminal) currentPromptLocked() string {
	if t.promptEnabled {
		return t.prompt
	}
	return ""
}

// Log prints plain console output.
func (t *Terminal) Log(text string) { t.write(text) }

// Info prints informational output.
func (t *Terminal) Info(text string) { t.write(t.styles.info.Render(text)) }

// Warn prints a warning.
func (t *Terminal) Warn(text string) { t.write(t.styles.warn.Render(text)) }

// Error prints an error.
func (t *Terminal) Error(text string) { t.write(t.styles.error.Render(text)) }

// Debug prints low-priority output.
func (t *Terminal) Debug(text string) { t.write(t.styles.debug.Render(text)) }

// Message prints a notice from the host itself rather than the device.
func (t *Terminal) Message(text string) { t.write(t.styles.message.Render(text)) }

// ReturnValue prints the result of an evaluation.
func (t *Terminal) ReturnValue(text string) {
	t.write(t.styles.returnValue.Render("<- " + text))
}

// InfoBlock prints a titled, bordered block.
func (t *Terminal) InfoBlock(title, body string) {
	content := t.styles.blockTitle.Render(title)
	if body != "" {
		content += "\n" + body
	}
	t.write(t.styles.block.Render(content))
}

// Writer returns an io.Writer that prints each line in the debug style.
// It is used to route the standard logger into the console.
func (t *Terminal) Writer() io.Writer {
	return debugWriter{t}
}

type debugWriter struct{ t *Terminal }

func (w debugWriter) Write(p []byte) (int, error) {
	w.t.Debug(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (t *Terminal) write(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	line := []byte(text + "\n")
	if t.editor != nil {
		t.editor.Write(line)
		return
	}
	t.out.Write(line)
}

// Discard is an Output that drops everything.
var Discard Output = discard{}

type discard struct{}

func (discard) Log(string)               {}
func (discard) Info(string)              {}
func (discard) Warn(string)              {}
func (discard) Error(string)             {}
func (discard) Debug(string)             {}
func (discard) Message(string)           {}
func (discard) InfoBlock(string, string) {}
func (discard) ReturnValue(string)       {}
