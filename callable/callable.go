package callable

import (
	"github.com/wippyai/dynbridge/guest"
)

// Callable is anything that can be invoked with a live guest context:
// a pinned guest function, a native closure, or a host object method
// exposed to the guest. A is the argument tuple type, R the result.
type Callable[A any, R any] interface {
	Invoke(c *guest.Context, args A) (R, error)
}

// Func adapts a native Go closure to Callable so native and guest
// functions are interchangeable at call sites.
type Func[A any, R any] func(c *guest.Context, args A) (R, error)

func (f Func[A, R]) Invoke(c *guest.Context, args A) (R, error) {
	return f(c, args)
}

// Void is the empty argument tuple.
type Void = struct{}

// Args2 and Args3 are argument tuples for multi-parameter callables.
// Fields lower in declaration order.
type Args2[T1 any, T2 any] struct {
	A T1
	B T2
}

type Args3[T1 any, T2 any, T3 any] struct {
	A T1
	B T2
	C T3
}
