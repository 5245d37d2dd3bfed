package reactive

import "reflect"

// EqualFunc reports whether two values should be treated as the same value.
type EqualFunc func(a, b any) bool

// Same reports whether a and b are identical.
//
// Dynamically comparable values are compared with ==. Maps, slices,
// functions, channels and pointers are compared by reference, so two
// distinct slices with equal contents are not the same. Same never performs
// deep equality and never panics.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ra := reflect.ValueOf(a)
	rb := reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}

	switch ra.Kind() {
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	case reflect.Slice:
		return ra.Pointer() == rb.Pointer() && ra.Len() == rb.Len()
	}

	if ra.Comparable() && rb.Comparable() {
		return ra.Equal(rb)
	}
	return false
}
