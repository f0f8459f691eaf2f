// Package storage defines the error kinds shared by all repositories.
package storage

import "errors"

var (
	// ErrNotFound means the referenced paper/session/message/entry
	// does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrReferential means a flag's message ids do not both belong to
	// the stated session, or are not a (user, assistant) pair.
	ErrReferential = errors.New("referenced messages do not belong to session")
	// ErrConstraint means a uniqueness constraint was violated, e.g. a
	// duplicate content hash on paper creation. Callers creating
	// papers should treat it as "fetch existing instead".
	ErrConstraint = errors.New("uniqueness constraint violated")
)
