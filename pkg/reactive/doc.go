// Package reactive provides the live handles handed out by rxstore.
//
// There are two kinds of handle:
//
//   - Stream: a hot, shareable, buffered-by-one sequence of values. New
//     subscribers immediately receive the latest value, then every later one.
//   - Cell: a reactive value container with change suppression through an
//     equality function. ReadCell and WriteCell are read-only and writable
//     views of a Cell.
//
// Values are untyped (any). A nil value means "absent": no value is stored
// for the key, or the handle has not been hydrated yet.
//
// A WriteCell is optimistic. Set and Update change the cell synchronously
// and hand the new value to a persistence hook in the background; a failed
// write is logged and never rolled back:
//
//	cell := store.WritableSignal("theme")
//	cell.Set("dark")
//	_ = cell.Get() // "dark", even before the write reaches the backend
//
// All handles are safe for concurrent use. Callbacks run outside of the
// handle's locks, in the goroutine that produced the value.
package reactive
