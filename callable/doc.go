// Package callable defines the uniform invocation abstraction shared
// by native closures and pinned guest functions.
//
// Both guest.Func and callable.Func satisfy Callable for matching
// tuple types, so code that accepts a Callable does not care which
// side of the boundary implements it. Calls always require a live
// guest.Context even for native closures: the closure may itself call
// back into the guest.
package callable
