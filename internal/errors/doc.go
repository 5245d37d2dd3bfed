// Package errors provides coded, actionable error messages for the rxstore
// command line tool.
//
// Every error carries a code (e.g. "RX002") that maps to a category, a short
// message and a longer explanation. Library packages return plain Go
// errors; FromStorage maps them onto codes at the CLI boundary.
//
// # Categories
//
//   - storage: backend and codec failures, disposed stores
//   - protocol: relay connection and change message problems
//   - config: rxstore.json loading and validation
//   - cli: command usage
//
// # Usage
//
//	err := errors.New("RX081").
//	    WithLocation("rxstore.json", 4, 12).
//	    WithSuggestion("Remove the trailing comma")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR RX081: Invalid config file
//	//
//	//   rxstore.json:4:12
//	//
//	//       3 │   "table": "settings",
//	//   →   4 │   "backend": "sqlite",,
//	//         │            ^
//	//       5 │ }
//	//
//	//   Hint: Remove the trailing comma
package errors
