// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrUnknownMsgType is returned when a datagram carries a message type
	// byte that does not correspond to any known message.
	ErrUnknownMsgType = ErrorKind("ErrUnknownMsgType")

	// ErrPayloadTooShort is returned when a datagram is too short to carry
	// the declared message.
	ErrPayloadTooShort = ErrorKind("ErrPayloadTooShort")

	// ErrPayloadTooLarge is returned when a message would exceed the maximum
	// datagram payload allowed.
	ErrPayloadTooLarge = ErrorKind("ErrPayloadTooLarge")

	// ErrTrailingBytes is returned when a datagram carries bytes beyond the
	// end of a well-formed message.
	ErrTrailingBytes = ErrorKind("ErrTrailingBytes")

	// ErrVarBytesTooLong is returned when a variable-length byte slice
	// exceeds the maximum length allowed for its field.
	ErrVarBytesTooLong = ErrorKind("ErrVarBytesTooLong")

	// ErrMalformedIP is returned when an encoded IP address is neither a
	// valid IPv4 nor IPv6 address.
	ErrMalformedIP = ErrorKind("ErrMalformedIP")

	// ErrTooManyServices is returned when a service list exceeds the maximum
	// number of entries allowed.
	ErrTooManyServices = ErrorKind("ErrTooManyServices")

	// ErrTooManyPeers is returned when a discovery response peer list
	// exceeds the maximum number of entries allowed.
	ErrTooManyPeers = ErrorKind("ErrTooManyPeers")

	// ErrMalformedSalt is returned when an encoded salt does not have the
	// expected length.
	ErrMalformedSalt = ErrorKind("ErrMalformedSalt")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// MessageError identifies an error related to wire messages.  It has full
// support for errors.Is and errors.As, so the caller can ascertain the
// specific reason for the error by checking the underlying error.
type MessageError struct {
	Func        string
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e MessageError) Error() string {
	if e.Func != "" {
		return e.Func + ": " + e.Description
	}
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e MessageError) Unwrap() error {
	return e.Err
}

// messageError creates a MessageError given a set of arguments.
func messageError(fn string, kind ErrorKind, desc string) MessageError {
	return MessageError{Func: fn, Description: desc, Err: kind}
}
