// Package evaluate runs host-submitted source text on the device.
//
// Source runs as top-level code in the global scope of an embedded goja
// runtime. Variables and functions declared by one evaluation stay visible
// to the next. Nothing is sandboxed; only the scope is fixed.
package evaluate

import (
	"strings"
	"sync"

	"github.com/dop251/goja"

	apperrors "github.com/eclipsesource/tabris-js-cli-sub000/internal/errors"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
)

// dispatchName is the script name of the dispatch function. Stack frames at
// and below it belong to the evaluator, not to user code.
const dispatchName = "tabris:dispatch"

// Indirect eval runs the source in the global scope instead of the scope of
// the dispatch function.
const dispatchSource = `(function $dispatch(src) { return (0, eval)(src); })`

// Evaluator runs source text and formats its completion value.
// A thrown value is returned as an error with code eval.thrown whose message
// is what the user should see.
type Evaluator interface {
	Evaluate(source string) (string, error)
}

// ConsoleFunc receives console output produced by evaluated code.
type ConsoleFunc func(level protocol.LogLevel, text string)

// Runtime is an Evaluator backed by a goja runtime.
// It is safe for concurrent use; evaluations are serialized.
type Runtime struct {
	mu        sync.Mutex
	vm        *goja.Runtime
	dispatch  goja.Callable
	formatter Formatter
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithFormatter replaces the DefaultFormatter.
func WithFormatter(f Formatter) Option {
	return func(r *Runtime) {
		r.formatter = f
	}
}

// WithConsole binds the global console object to fn.
func WithConsole(fn ConsoleFunc) Option {
	return func(r *Runtime) {
		r.bindConsole(fn)
	}
}

// NewRuntime creates a runtime with a fresh global scope.
func NewRuntime(opts ...Option) (*Runtime, error) {
	vm := goja.New()

	prg, err := goja.Compile(dispatchName, dispatchSource, false)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "compile dispatch function", err)
	}
	fnValue, err := vm.RunProgram(prg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "create dispatch function", err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, apperrors.New(apperrors.CodeInternal, "dispatch is not a function")
	}

	r := &Runtime{
		vm:        vm,
		dispatch:  fn,
		formatter: DefaultFormatter{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Set defines a global variable, e.g. to expose app objects to the console.
func (r *Runtime) Set(name string, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vm.Set(name, value)
}

// Evaluate runs source in the global scope.
func (r *Runtime) Evaluate(source string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.dispatch(goja.Undefined(), r.vm.ToValue(source))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeEvalThrown, describeThrown(err), err)
	}
	return r.formatter.Format(r.vm, v), nil
}

// describeThrown returns the user-facing text for a thrown value: the stack
// trace cut off before the dispatch frame for Error objects, a generic
// description for anything else.
func describeThrown(err error) string {
	ex, ok := err.(*goja.Exception)
	if !ok {
		return err.Error()
	}

	val := ex.Value()
	if obj, ok := val.(*goja.Object); ok && obj.ClassName() == "Error" {
		return truncateStack(ex.String())
	}
	if val == nil {
		return "Uncaught exception"
	}
	return "Uncaught " + DefaultFormatter{}.format(nil, val)
}

// truncateStack removes the first line that mentions the dispatch function
// and everything after it.
func truncateStack(stack string) string {
	lines := strings.Split(strings.TrimRight(stack, "\n"), "\n")
	for i, line := range lines {
		if strings.Contains(line, dispatchName) {
			lines = lines[:i]
			break
		}
	}
	// The indirect eval call itself shows up as a native frame.
	for len(lines) > 1 && isNativeFrame(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func isNativeFrame(line string) bool {
	line = strings.TrimSuffix(strings.TrimSpace(line), ")")
	return strings.HasPrefix(line, "at ") && strings.HasSuffix(line, "native")
}
