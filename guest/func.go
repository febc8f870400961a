package guest

import (
	"reflect"

	"github.com/wippyai/dynbridge/errors"
)

// Func represents a guest closure as a native callable: a pinned guest
// value known to be invocable, plus the static argument tuple and
// result types it was captured with. Created when a closure value
// crosses into native code, destroyed when its last native owner is
// dropped - which must happen under a live context, like any Box.
type Func[A any, R any] struct {
	box  *Box
	name string
}

// NewFunc pins a raw guest closure value under the given diagnostic
// name.
func NewFunc[A any, R any](c *Context, raw uint64, name string) (*Func[A, R], error) {
	box, err := NewBox(c, raw)
	if err != nil {
		return nil, err
	}
	return &Func[A, R]{box: box, name: name}, nil
}

// FuncFromBox attaches a signature to an already-pinned closure value.
// The box's reference is taken over by the Func.
func FuncFromBox[A any, R any](box *Box, name string) *Func[A, R] {
	return &Func[A, R]{box: box, name: name}
}

// Name returns the diagnostic name the closure was captured under.
func (f *Func[A, R]) Name() string { return f.name }

// Call marshals the argument tuple into guest representation, invokes
// the closure, and marshals the result back. The result is a single
// word (or none, for a closure with no result); a closure returning
// more than one word is rejected rather than silently truncated.
// The closure may re-enter
// native code through registered host functions; those re-entrant calls
// run under the same live context, see the same frozen registry, and
// share reference counts for any handle passed through.
//
// An error raised on the guest side comes back as a call_failure
// result, never swallowed. A callback that never returns blocks the
// caller; that is the caller's responsibility.
func (f *Func[A, R]) Call(c *Context, args A) (R, error) {
	var zero R
	if f.box.released {
		return zero, errors.Released(errors.PhaseGuest, "guest func")
	}
	if err := c.check(f.box.shared.rt, "Call"); err != nil {
		return zero, err
	}

	words, err := lowerTuple(c, args)
	if err != nil {
		return zero, err
	}

	backend := f.box.shared.rt.backend
	results, err := backend.Invoke(c, f.box.shared.root, words)
	if err != nil {
		return zero, errors.CallFailure(f.name, err)
	}

	if len(results) == 0 {
		return zero, nil
	}
	if len(results) > 1 {
		return zero, errors.InvalidInput(errors.PhaseGuest,
			"closure returned more than one result word")
	}
	var out R
	if err := backend.Lift(c, results[0], &out); err != nil {
		return zero, errors.CallFailure(f.name, err)
	}
	return out, nil
}

// Invoke makes Func satisfy the uniform callable abstraction, so call
// sites accepting a callback need not distinguish guest-origin from
// native-origin.
func (f *Func[A, R]) Invoke(c *Context, args A) (R, error) {
	return f.Call(c, args)
}

// Clone adds a native owner.
func (f *Func[A, R]) Clone() *Func[A, R] {
	return &Func[A, R]{box: f.box.Clone(), name: f.name}
}

// Release drops this owner's reference, releasing the underlying guest
// value when it is the last one.
func (f *Func[A, R]) Release(c *Context) {
	f.box.Release(c)
}

// lowerTuple marshals an argument tuple. A struct lowers field by
// field in declaration order; anything else lowers as a single value.
// The empty struct is the empty tuple.
func lowerTuple(c *Context, args any) ([]uint64, error) {
	backend := c.rt.backend
	v := reflect.ValueOf(args)
	if v.Kind() != reflect.Struct {
		w, err := backend.Lower(c, args)
		if err != nil {
			return nil, err
		}
		return []uint64{w}, nil
	}

	words := make([]uint64, 0, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		w, err := backend.Lower(c, v.Field(i).Interface())
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, nil
}
