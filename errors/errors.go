package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister Phase = "register" // type/trait registration
	PhaseResolve  Phase = "resolve"  // conversion entry lookup
	PhaseCast     Phase = "cast"     // upcast/downcast/coerce
	PhaseBorrow   Phase = "borrow"   // borrow and mutation access
	PhaseGuest    Phase = "guest"    // guest runtime boundary
	PhaseBind     Phase = "bind"     // binding declarations
	PhaseLoad     Phase = "load"     // guest module loading
)

// Kind categorizes the error
type Kind string

const (
	KindDuplicateRegistration   Kind = "duplicate_registration"
	KindCapabilityNotRegistered Kind = "capability_not_registered"
	KindTypeMismatch            Kind = "type_mismatch"
	KindUniquenessViolation     Kind = "uniqueness_violation"
	KindCallFailure             Kind = "call_failure"
	KindContextRequired         Kind = "context_required"
	KindNotFound                Kind = "not_found"
	KindInvalidInput            Kind = "invalid_input"
	KindReleased                Kind = "released"
)

// Error is the structured error type used throughout dynbridge
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	TypeName   string
	Capability string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.TypeName != "" || e.Capability != "" {
		b.WriteString(": ")
		if e.TypeName != "" && e.Capability != "" {
			b.WriteString("type ")
			b.WriteString(e.TypeName)
			b.WriteString(", capability ")
			b.WriteString(e.Capability)
		} else if e.TypeName != "" {
			b.WriteString("type ")
			b.WriteString(e.TypeName)
		} else {
			b.WriteString("capability ")
			b.WriteString(e.Capability)
		}
	}

	if e.Detail != "" {
		if e.TypeName != "" || e.Capability != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsConfiguration reports whether the error is a configuration error:
// a static mismatch between what code requests and what was registered.
// Configuration errors are fatal by policy and never retried.
func (e *Error) IsConfiguration() bool {
	return e.Kind == KindDuplicateRegistration || e.Kind == KindCapabilityNotRegistered
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the access path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Type sets the concrete type name
func (b *Builder) Type(t string) *Builder {
	b.err.TypeName = t
	return b
}

// Capability sets the capability combination key
func (b *Builder) Capability(c string) *Builder {
	b.err.Capability = c
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// DuplicateRegistration creates a conflicting re-registration error
func DuplicateRegistration(typeName, detail string) *Error {
	return &Error{
		Phase:    PhaseRegister,
		Kind:     KindDuplicateRegistration,
		TypeName: typeName,
		Detail:   detail,
	}
}

// CapabilityNotRegistered creates an unresolved combination error
func CapabilityNotRegistered(typeName, capability string) *Error {
	return &Error{
		Phase:      PhaseResolve,
		Kind:       KindCapabilityNotRegistered,
		TypeName:   typeName,
		Capability: capability,
		Detail:     "no conversion entry materialized for this combination",
	}
}

// TypeMismatch creates a downcast identity mismatch error
func TypeMismatch(want, got string) *Error {
	return &Error{
		Phase:    PhaseCast,
		Kind:     KindTypeMismatch,
		TypeName: got,
		Detail:   fmt.Sprintf("want %s", want),
	}
}

// UniquenessViolation creates a mutation-through-shared-view error
func UniquenessViolation(typeName, detail string) *Error {
	return &Error{
		Phase:    PhaseBorrow,
		Kind:     KindUniquenessViolation,
		TypeName: typeName,
		Detail:   detail,
	}
}

// CallFailure wraps an error raised on the guest side of a call
func CallFailure(fn string, cause error) *Error {
	return &Error{
		Phase:  PhaseGuest,
		Kind:   KindCallFailure,
		Detail: fn,
		Cause:  cause,
	}
}

// ContextRequired creates an error for guest access outside a live context
func ContextRequired(op string) *Error {
	return &Error{
		Phase:  PhaseGuest,
		Kind:   KindContextRequired,
		Detail: op,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Released creates a use-after-release error
func Released(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReleased,
		Detail: fmt.Sprintf("%s has been released", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExport represents a single guest export the backend requires
// but the loaded module does not provide.
type MissingExport struct {
	Name string
}

// MissingExportsError is returned when a guest module lacks the
// bridge exports the backend needs to operate.
type MissingExportsError struct {
	Exports []MissingExport
}

// NewMissingExportsError creates an error from a list of export names
func NewMissingExportsError(names []string) *MissingExportsError {
	result := &MissingExportsError{
		Exports: make([]MissingExport, 0, len(names)),
	}
	for _, n := range names {
		result.Exports = append(result.Exports, MissingExport{Name: n})
	}
	return result
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[load] missing_export: no exports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("guest module missing %d export(s):", len(e.Exports)))
	for _, exp := range e.Exports {
		b.WriteString("\n  - ")
		b.WriteString(exp.Name)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}
