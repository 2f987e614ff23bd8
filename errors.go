package keyringstore

import (
	"errors"
	"fmt"
)

// ErrNoEntry reports that no credential exists for a (service, user) pair.
// It is a normal outcome, not a failure.
var ErrNoEntry = errors.New("no credential entry for this service and user")

// MissingIvLenError reports an empty envelope: not even the IV length byte is
// present.
type MissingIvLenError struct{}

func (e *MissingIvLenError) Error() string {
	return "envelope is empty: missing IV length byte"
}

// InvalidIvLenError reports an envelope whose IV length byte does not match
// the fixed IV length.
type InvalidIvLenError struct {
	Actual int
}

func (e *InvalidIvLenError) Error() string {
	return fmt.Sprintf("envelope declares a %d-byte IV, expected %d", e.Actual, ivLen)
}

// DataTooSmallError reports an envelope too short to hold an IV plus any
// ciphertext. Len is the number of bytes after the IV length byte.
type DataTooSmallError struct {
	Len int
}

func (e *DataTooSmallError) Error() string {
	return fmt.Sprintf("envelope holds %d bytes after the IV length byte, need more than %d", e.Len, ivLen)
}

// DecryptionFailureError reports an envelope that parsed but failed
// authentication: encrypted under a different key, or tampered with.
type DecryptionFailureError struct{}

func (e *DecryptionFailureError) Error() string {
	return "envelope failed authentication during decryption"
}

// BadDataFormatError reports stored bytes that exist but cannot be used. Raw
// preserves the offending bytes for diagnostics; Reason is one of
// MissingIvLenError, InvalidIvLenError, DataTooSmallError or
// DecryptionFailureError and is reachable through errors.As.
type BadDataFormatError struct {
	Raw    []byte
	Reason error
}

func (e *BadDataFormatError) Error() string {
	return fmt.Sprintf("stored credential data is unusable: %v", e.Reason)
}

func (e *BadDataFormatError) Unwrap() error {
	return e.Reason
}

// BadEncodingError reports a stored secret that is not valid UTF-8 and so
// cannot be returned as a password string. Raw preserves the bytes; the
// secret is still retrievable through GetSecret.
type BadEncodingError struct {
	Raw []byte
}

func (e *BadEncodingError) Error() string {
	return "stored secret is not valid UTF-8"
}

// PlatformError wraps a failure from one of the backing facilities: key
// provider, cipher, namespace store or audit sink.
type PlatformError struct {
	Cause error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform failure: %v", e.Cause)
}

func (e *PlatformError) Unwrap() error {
	return e.Cause
}

// NotSupportedError reports a caller request this store does not implement.
type NotSupportedError struct {
	Message string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("not supported by this store: %s", e.Message)
}
