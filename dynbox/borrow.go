package dynbox

import (
	"reflect"

	"github.com/wippyai/dynbridge/errors"
)

// Borrow runs fn with the concrete value under a shared borrow. The
// concrete type must match the erased value's identity exactly. fn must
// treat the value as read-only and must not retain it past its return.
func Borrow[T any](b *Box, fn func(*T)) error {
	b.mustLive("Borrow")
	b.cell.mu.RLock()
	defer b.cell.mu.RUnlock()

	v, ok := b.cell.value.(*T)
	if !ok {
		return errors.TypeMismatch(reflect.TypeOf((*T)(nil)).Elem().String(), b.cell.typ.Name())
	}
	fn(v)
	return nil
}

// BorrowMut runs fn with the concrete value under an exclusive borrow.
// The cell's lock guarantees no other borrow of the same allocation is
// observable while fn runs. Mutation through a read-only handle fails
// loudly with a uniqueness violation rather than silently racing.
func BorrowMut[T any](b *Box, fn func(*T)) error {
	b.mustLive("BorrowMut")
	if b.readOnly {
		return errors.UniquenessViolation(b.cell.typ.Name(),
			"mutable borrow through a shared handle")
	}
	b.cell.mu.Lock()
	defer b.cell.mu.Unlock()

	v, ok := b.cell.value.(*T)
	if !ok {
		return errors.TypeMismatch(reflect.TypeOf((*T)(nil)).Elem().String(), b.cell.typ.Name())
	}
	fn(v)
	return nil
}
