package evaluate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/eclipsesource/tabris-js-cli-sub000/internal/protocol"
)

// Formatter turns a completion value into the text shown after "<- ".
type Formatter interface {
	Format(vm *goja.Runtime, v goja.Value) string
}

// DefaultFormatter prints primitives as the console would, strings quoted,
// symbols by description, functions by name, maps and sets by entries and
// other objects as JSON. Objects that JSON cannot represent fall back to
// their string conversion.
type DefaultFormatter struct{}

// Format implements Formatter.
func (f DefaultFormatter) Format(vm *goja.Runtime, v goja.Value) string {
	return f.format(vm, v)
}

func (DefaultFormatter) format(vm *goja.Runtime, v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}

	// Symbols export as their description.
	if sym, ok := v.(*goja.Symbol); ok {
		return "Symbol(" + sym.String() + ")"
	}
	if s, ok := v.Export().(string); ok {
		return quote(s)
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFunc := goja.AssertFunction(obj); isFunc {
		name := obj.Get("name")
		if name == nil || name.String() == "" {
			return "[Function (anonymous)]"
		}
		return "[Function: " + name.String() + "]"
	}
	if obj.ClassName() == "Error" || vm == nil {
		return obj.String()
	}
	if text, ok := formatCollection(vm, obj); ok {
		return text
	}
	if text, ok := stringify(vm, obj); ok {
		return text
	}
	return obj.String()
}

// formatCollection prints a Map as Map(n) {k => v, ...} and a Set as
// Set(n) {v, ...}. It reports false for other objects.
func formatCollection(vm *goja.Runtime, obj *goja.Object) (string, bool) {
	for _, kind := range []string{"Map", "Set"} {
		ctor := vm.Get(kind)
		if ctor == nil || !vm.InstanceOf(obj, ctor.ToObject(vm)) {
			continue
		}
		entries, ok := arrayFrom(vm, obj)
		if !ok {
			return "", false
		}
		parts := make([]string, 0, len(entries))
		for _, entry := range entries {
			if kind == "Set" {
				parts = append(parts, DefaultFormatter{}.format(vm, entry))
				continue
			}
			pair := entry.ToObject(vm)
			parts = append(parts, DefaultFormatter{}.format(vm, pair.Get("0"))+" => "+DefaultFormatter{}.format(vm, pair.Get("1")))
		}
		if len(parts) == 0 {
			return fmt.Sprintf("%s(0) {}", kind), true
		}
		return fmt.Sprintf("%s(%d) {%s}", kind, len(parts), strings.Join(parts, ", ")), true
	}
	return "", false
}

// arrayFrom returns the items of an iterable via Array.from.
func arrayFrom(vm *goja.Runtime, v goja.Value) ([]goja.Value, bool) {
	array := vm.Get("Array")
	if array == nil {
		return nil, false
	}
	arrayObj := array.ToObject(vm)
	from, ok := goja.AssertFunction(arrayObj.Get("from"))
	if !ok {
		return nil, false
	}
	list, err := from(arrayObj, v)
	if err != nil {
		return nil, false
	}
	listObj := list.ToObject(vm)
	n := int(listObj.Get("length").ToInteger())
	items := make([]goja.Value, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, listObj.Get(strconv.Itoa(i)))
	}
	return items, true
}

// stringify calls JSON.stringify in vm. It reports false for values JSON
// cannot represent, such as cyclic objects.
func stringify(vm *goja.Runtime, v goja.Value) (string, bool) {
	jsonObj := vm.Get("JSON")
	if jsonObj == nil {
		return "", false
	}
	fn, ok := goja.AssertFunction(jsonObj.ToObject(vm).Get("stringify"))
	if !ok {
		return "", false
	}
	out, err := fn(jsonObj, v)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return "", false
	}
	return out.String(), true
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return "'" + s + "'"
}

// consoleMethods maps console functions to log levels.
var consoleMethods = map[string]protocol.LogLevel{
	"log":   protocol.LevelLog,
	"info":  protocol.LevelInfo,
	"warn":  protocol.LevelWarn,
	"error": protocol.LevelError,
	"debug": protocol.LevelDebug,
	"trace": protocol.LevelDebug,
}

// bindConsole installs a console object whose methods forward to fn.
// Strings are printed as is; other arguments go through the formatter.
func (r *Runtime) bindConsole(fn ConsoleFunc) {
	console := r.vm.NewObject()
	for name, level := range consoleMethods {
		level := level
		console.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				if _, isSym := arg.(*goja.Symbol); !isSym {
					if s, ok := arg.Export().(string); ok {
						parts = append(parts, s)
						continue
					}
				}
				parts = append(parts, r.formatter.Format(r.vm, arg))
			}
			fn(level, strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	r.vm.Set("console", console)
}
