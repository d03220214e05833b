package communicator

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"remote-call/invoke"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// invokeLocal is the innermost handler: resolve the listener path against
// the local provider, apply the member, and encode the outcome as a return
// record for the same uid. Nothing escapes — resolution failures, provider
// errors, serialization failures, and panics all become failure returns.
func (c *Communicator) invokeLocal(ctx context.Context, req *invoke.Invoke) (ret *invoke.Invoke) {
	defer func() {
		if r := recover(); r != nil {
			ret = invoke.NewFailure(req.UID, invoke.Named("PanicError", "provider panicked: %v", r))
		}
	}()

	c.mu.Lock()
	provider := c.provider
	c.mu.Unlock()
	if provider == nil {
		return invoke.NewFailure(req.UID, invoke.NoProvider())
	}

	fn, err := resolveMember(provider, req.Listener)
	if err != nil {
		return invoke.NewFailure(req.UID, err)
	}

	value, err := applyMember(ctx, fn, req.Parameters)
	if err != nil {
		return invoke.NewFailure(req.UID, err)
	}

	out, err := invoke.NewReturn(req.UID, value)
	if err != nil {
		return invoke.NewFailure(req.UID, err)
	}
	return out
}

// resolveMember walks the dot-separated listener path against the provider.
// Each segment reads, in order: a method (wire name or its exported form),
// a struct field, or a string-keyed map entry. A missing segment or a
// non-callable final member is a not-a-function error — resolution never
// fails locally on the calling side, only here on the provider side.
func resolveMember(provider any, path string) (reflect.Value, error) {
	segments := strings.Split(path, ".")
	cur := reflect.ValueOf(provider)
	for i, seg := range segments {
		if seg == "" {
			return reflect.Value{}, invoke.NotCallable(path, "empty path segment")
		}
		next, ok := member(cur, seg)
		if !ok {
			return reflect.Value{}, invoke.NotCallable(path,
				fmt.Sprintf("no member %q", strings.Join(segments[:i+1], ".")))
		}
		cur = next
	}
	for cur.Kind() == reflect.Interface {
		cur = cur.Elem()
	}
	if cur.Kind() != reflect.Func {
		return reflect.Value{}, invoke.NotCallable(path, "final member is not callable")
	}
	return cur, nil
}

// member reads one named member off v: method first (bound methods keep
// their receiver), then struct field, then map entry. Listener paths use
// provider-native casing, so both the wire spelling and its exported form
// are tried.
func member(v reflect.Value, name string) (reflect.Value, bool) {
	candidates := []string{name, exported(name)}

	for v.IsValid() {
		for _, candidate := range candidates {
			if m := v.MethodByName(candidate); m.IsValid() {
				return m, true
			}
		}
		if v.Kind() != reflect.Interface && v.Kind() != reflect.Pointer {
			break
		}
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		for _, candidate := range candidates {
			f := v.FieldByName(candidate)
			if f.IsValid() && f.CanInterface() {
				return f, true
			}
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String {
			key := reflect.ValueOf(name).Convert(v.Type().Key())
			if mv := v.MapIndex(key); mv.IsValid() {
				return mv, true
			}
		}
	}
	return reflect.Value{}, false
}

func exported(name string) string {
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// applyMember decodes the wire parameters into the member's parameter types
// and calls it. An optional leading context.Context is supplied by the
// framework. Result conventions: (T, error), T, error, or no return — the
// first non-error output becomes the return value.
func applyMember(ctx context.Context, fn reflect.Value, params []invoke.Parameter) (any, error) {
	ft := fn.Type()
	numIn := ft.NumIn()

	args := make([]reflect.Value, 0, numIn)
	idx := 0
	if numIn > 0 && ft.In(0) == ctxType {
		args = append(args, reflect.ValueOf(ctx))
		idx = 1
	}

	want := numIn - idx
	if ft.IsVariadic() {
		if len(params) < want-1 {
			return nil, invoke.Named("ArgumentError",
				"listener takes at least %d parameters, got %d", want-1, len(params))
		}
	} else if len(params) != want {
		return nil, invoke.Named("ArgumentError",
			"listener takes %d parameters, got %d", want, len(params))
	}

	for i, p := range params {
		pos := idx + i
		var at reflect.Type
		if ft.IsVariadic() && pos >= numIn-1 {
			at = ft.In(numIn - 1).Elem()
		} else {
			at = ft.In(pos)
		}
		argv := reflect.New(at)
		if err := p.Decode(argv.Interface()); err != nil {
			return nil, invoke.Named("ArgumentError", "decode parameter %d: %v", i, err)
		}
		args = append(args, argv.Elem())
	}

	outs := fn.Call(args)

	var value any
	var callErr error
	valueSet := false
	for _, out := range outs {
		if out.Type() == errType {
			if !out.IsNil() {
				callErr = out.Interface().(error)
			}
			continue
		}
		if !valueSet {
			value = out.Interface()
			valueSet = true
		}
	}
	if callErr != nil {
		return nil, callErr
	}
	return value, nil
}
