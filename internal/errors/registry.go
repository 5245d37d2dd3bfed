package errors

import "sort"

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// Storage (RX001-RX039)

	"RX001": {
		Category: CategoryStorage,
		Message:  "Backend unavailable",
		Detail:   "The configured backend could not be opened. Reads return nothing and writes are discarded.",
	},
	"RX002": {
		Category: CategoryStorage,
		Message:  "Backend operation failed",
		Detail:   "The backend rejected the operation. The registry was not updated.",
	},
	"RX003": {
		Category: CategoryStorage,
		Message:  "Stored value could not be decoded",
		Detail:   "The stored text for this key is not valid JSON. It was probably written by another program.",
	},
	"RX004": {
		Category: CategoryStorage,
		Message:  "Value could not be encoded",
		Detail:   "Values are stored as JSON. Functions and channels cannot be stored.",
	},
	"RX005": {
		Category: CategoryStorage,
		Message:  "Store disposed",
		Detail:   "The store was disposed and no longer accepts operations.",
	},
	"RX010": {
		Category: CategoryStorage,
		Message:  "Key not found",
		Detail:   "No value is stored for this key in the selected table.",
	},

	// Protocol (RX040-RX079)

	"RX040": {
		Category: CategoryProtocol,
		Message:  "Relay connection failed",
		Detail:   "Could not connect to the change relay. Cross-process updates are not delivered.",
	},
	"RX041": {
		Category: CategoryProtocol,
		Message:  "Relay server failed",
		Detail:   "The relay HTTP server stopped with an error.",
	},

	// Config (RX080-RX119)

	"RX080": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No rxstore.json was found.",
	},
	"RX081": {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "rxstore.json could not be read or is not valid JSON.",
	},
	"RX082": {
		Category: CategoryConfig,
		Message:  "Invalid config value",
		Detail:   "A configuration value is out of range.",
	},
	"RX083": {
		Category: CategoryConfig,
		Message:  "Unknown backend",
		Detail:   "The backend must be one of memory, sqlite or s3.",
	},

	// CLI (RX120-RX159)

	"RX120": {
		Category: CategoryCLI,
		Message:  "Invalid value argument",
		Detail:   "Values passed on the command line must be JSON. Quote plain strings, e.g. '\"dark\"'.",
	},
}

// Codes returns all registered error codes, sorted.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Lookup returns the template for an error code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
