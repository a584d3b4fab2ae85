package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors.
var (
	// ErrDuplicateClient is returned when an address already has a client.
	ErrDuplicateClient = errors.New("registry: client already registered for address")

	// ErrNotRegistered is returned when an address has no client.
	ErrNotRegistered = errors.New("registry: no client registered for address")
)

// TeardownError lists the clients that failed to disconnect during
// Teardown, keyed by canonical address. The registry is cleared regardless.
type TeardownError struct {
	Failures map[string]error
}

func (e *TeardownError) Error() string {
	keys := make([]string, 0, len(e.Failures))
	for k := range e.Failures {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failures[k]))
	}
	return fmt.Sprintf("registry: %d client(s) failed to disconnect: %s", len(keys), strings.Join(parts, "; "))
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *TeardownError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}
