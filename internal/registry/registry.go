// Package registry maps platform user identities to their scrobble-service
// usernames. Registrations are validated against the service before they
// commit and persisted synchronously to the "music" config document.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/chorus/internal/config"
	"github.com/scrypster/chorus/internal/platform"
)

// namesKey is the document key the username map is stored under.
const namesKey = "names"

// ErrUnknownUsername is returned by Register when the scrobble service
// does not know the submitted username. The registry stays unchanged.
var ErrUnknownUsername = errors.New("registry: no such user on the scrobble service")

// NotRegisteredError reports that a platform user has no mapped username.
// It is an expected outcome the command layer turns into a prompt to
// register, never an error to log.
type NotRegisteredError struct {
	UserID string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("registry: user %s is not registered", e.UserID)
}

// UsernameValidator checks a username against the scrobble service. One
// network round-trip per registration.
type UsernameValidator interface {
	UserExists(ctx context.Context, user string) (bool, error)
}

// Member is a registered guild member: the platform identity joined with
// the stored scrobble username.
type Member struct {
	UserID      string
	DisplayName string
	Username    string
}

// Registry is the user-id to username mapping. Last write wins; there is
// no delete.
type Registry struct {
	doc       *config.Document
	validator UsernameValidator
}

// New creates a registry over the music config document.
func New(doc *config.Document, validator UsernameValidator) *Registry {
	return &Registry{doc: doc, validator: validator}
}

// Register validates the username against the scrobble service and stores
// the mapping. An unknown username returns ErrUnknownUsername and leaves
// the registry untouched; a failed validation round-trip propagates as the
// service's error.
func (r *Registry) Register(ctx context.Context, userID, username string) error {
	exists, err := r.validator.UserExists(ctx, username)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnknownUsername
	}
	return r.doc.SetMapEntry(namesKey, userID, username)
}

// Resolve returns the stored username for the platform user, or a
// *NotRegisteredError so callers can distinguish "never registered" from
// an empty value.
func (r *Registry) Resolve(userID string) (string, error) {
	names := r.doc.StringMap(namesKey)
	username, ok := names[userID]
	if !ok || username == "" {
		return "", &NotRegisteredError{UserID: userID}
	}
	return username, nil
}

// ListRegistered filters members down to those present in the registry,
// joining each with their stored username. Order follows the input.
func (r *Registry) ListRegistered(members []platform.Member) []Member {
	names := r.doc.StringMap(namesKey)

	out := make([]Member, 0, len(members))
	for _, m := range members {
		if username, ok := names[m.UserID]; ok && username != "" {
			out = append(out, Member{
				UserID:      m.UserID,
				DisplayName: m.DisplayName,
				Username:    username,
			})
		}
	}
	return out
}
