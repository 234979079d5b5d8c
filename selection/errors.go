// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package selection

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific ValidationError.
const (
	// ErrExpiredRequest indicates a request timestamp fell outside the
	// freshness window, guarding against replayed datagrams.
	ErrExpiredRequest = ErrorKind("ErrExpiredRequest")

	// ErrPeerNotVerified indicates a peering request arrived from a peer
	// without a successful verification.
	ErrPeerNotVerified = ErrorKind("ErrPeerNotVerified")

	// ErrExpiredSalt indicates a peering request offered a salt that has
	// already expired.
	ErrExpiredSalt = ErrorKind("ErrExpiredSalt")

	// ErrNoPendingRequest indicates a response arrived with no matching
	// pending request for the sender.
	ErrNoPendingRequest = ErrorKind("ErrNoPendingRequest")

	// ErrHashMismatch indicates a response echoed a request hash other
	// than the one of the pending request.
	ErrHashMismatch = ErrorKind("ErrHashMismatch")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// ValidationError identifies why an inbound packet was rejected.  It has
// full support for errors.Is and errors.As, so the caller can ascertain the
// specific rejection reason by checking the underlying error.
type ValidationError struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e ValidationError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e ValidationError) Unwrap() error {
	return e.Err
}

// validationError creates a ValidationError given a set of arguments.
func validationError(kind ErrorKind, desc string) ValidationError {
	return ValidationError{Description: desc, Err: kind}
}
