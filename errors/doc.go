// Package errors provides structured error types for the dynbridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Configuration errors (duplicate registration, unresolved
// capability combination) are always a static mismatch between what code
// requests and what was registered; they are fatal by policy and never
// retried. Identity errors (downcast to the wrong concrete type) and guest
// call failures are ordinary result values the caller is expected to handle.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindCapabilityNotRegistered).
//		Type("testbed.Sheep").
//		Capability("shareable+transferable|Animal").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch("testbed.Sheep", "testbed.Wolf")
//	err := errors.CallFailure("on-event", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
