// Package guest makes values owned by an embedded guest runtime safe to
// hold from native code.
//
// A Box pins one opaque guest value against collection for as long as
// any native reference to it lives. A Func is a Box known to refer to a
// guest closure, callable with a fixed, statically-typed argument tuple.
// Both are movable across native threads; every dereference requires a
// Context.
//
// The Context is the token proving the guest runtime is currently
// reachable from this thread. It only exists inside Runtime.Enter, and
// every API that touches a guest value takes it as a parameter, so use
// outside a live context cannot compile by accident. One context exists
// at a time: boundary crossings are cooperative, and re-entrant calls
// (a guest closure calling back into native host functions) run under
// the context already held.
//
// Releasing the last reference to a pinned value must itself happen
// under a live context. A last release without one is deferred and
// performed on the runtime's next Enter.
package guest
