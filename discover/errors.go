// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package discover

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific ValidationError.
const (
	// ErrVersionMismatch indicates a request carried a protocol version
	// other than the local one.
	ErrVersionMismatch = ErrorKind("ErrVersionMismatch")

	// ErrNetworkMismatch indicates a request carried a network id other
	// than the local one.
	ErrNetworkMismatch = ErrorKind("ErrNetworkMismatch")

	// ErrExpiredRequest indicates a request timestamp fell outside the
	// freshness window, guarding against replayed datagrams.
	ErrExpiredRequest = ErrorKind("ErrExpiredRequest")

	// ErrNoPendingRequest indicates a response arrived with no matching
	// pending request for the sender.
	ErrNoPendingRequest = ErrorKind("ErrNoPendingRequest")

	// ErrHashMismatch indicates a response echoed a request hash other
	// than the one of the pending request.
	ErrHashMismatch = ErrorKind("ErrHashMismatch")

	// ErrMissingService indicates a verification response did not
	// advertise the required peering service.
	ErrMissingService = ErrorKind("ErrMissingService")

	// ErrPortMismatch indicates the advertised peering port does not match
	// the observed source port of the datagram.
	ErrPortMismatch = ErrorKind("ErrPortMismatch")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// ValidationError identifies why an inbound packet was rejected.  It has
// full support for errors.Is and errors.As, so the caller can ascertain the
// specific rejection reason by checking the underlying error.
//
// Validation failures are expected, frequent conditions on an open UDP
// port: they are logged at a diagnostic level and cause the offending
// packet to be dropped without affecting any other packet.
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
