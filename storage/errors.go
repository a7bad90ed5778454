package storage

import "errors"

var (
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateCommitment is returned when storing a commitment whose hash
	// is already known.
	ErrDuplicateCommitment = errors.New("duplicate commitment")
	// ErrUnauthorized is returned when the secret key does not own the
	// commitment.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyNullified is returned when nullifying a spent commitment.
	ErrAlreadyNullified = errors.New("commitment already nullified")
	// ErrInvalidCommitment is returned when the hash of a commitment does not
	// match its preimage.
	ErrInvalidCommitment = errors.New("invalid commitment")
)
