// Package sources contains the network adapters for the external music
// services. Each adapter translates one service's wire schema into the
// shared music entity types and reports failures through a small common
// taxonomy: ErrNotFound when the service answered "no match", and
// *SourceError when the call itself failed.
package sources

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that a lookup completed but produced no result.
// It is not a failure; aggregation treats it as "skip or fall back".
var ErrNotFound = errors.New("sources: not found")

// SourceError reports that a service call failed outright: transport error,
// auth rejection, rate limit, or a response too malformed to use. It names
// the origin service so the command layer can say which one is down.
type SourceError struct {
	Service string
	Message string
	Err     error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *SourceError) Unwrap() error { return e.Err }

// srcErr wraps err as a SourceError for the given service.
func srcErr(service, message string, err error) error {
	return &SourceError{Service: service, Message: message, Err: err}
}

// IsNotFound reports whether err is the not-found outcome.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
