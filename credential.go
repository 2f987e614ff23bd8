package keyringstore

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/open-source-cooperative/android-native-keyring-store/keystore"
)

// Audit actions emitted by credential operations. Each operation logs an
// _INITIATED event on entry and a _COMPLETED or _FAILED event on exit.
const (
	actionSetSecret        = "SET_SECRET"
	actionGetSecret        = "GET_SECRET"
	actionDeleteCredential = "DELETE_CREDENTIAL"
	actionGetCredential    = "GET_CREDENTIAL"
)

// Credential is a handle to one (service, user) entry. It carries no mutable
// state of its own, only the identifying strings and the shared store
// backends, so it is safe for concurrent use from any number of goroutines.
// Nothing is provisioned at construction time; the service key is created
// lazily on the first operation that needs it.
type Credential struct {
	service string
	user    string
	store   *Store
}

// Specifiers returns the service and user this credential is bound to.
func (c *Credential) Specifiers() (service, user string) {
	return c.service, c.user
}

// SetSecret encrypts secret under the service key and persists the envelope,
// replacing any previous value for this (service, user).
func (c *Credential) SetSecret(secret []byte) error {
	requestID := uuid.NewString()
	start := time.Now()
	c.store.auditLog(actionSetSecret+"_INITIATED", true, c.auditMeta(requestID, nil))

	key, err := c.store.obtainKey(c.service)
	if err != nil {
		c.store.auditFailure(actionSetSecret, requestID, c, start, err)
		return err
	}

	iv, ciphertext, err := c.store.cipher.Encrypt(key, secret)
	if err != nil {
		wrapped := &PlatformError{Cause: err}
		c.store.auditFailure(actionSetSecret, requestID, c, start, wrapped)
		return wrapped
	}
	envelope := encodeEnvelope(iv, ciphertext)

	editor, err := c.store.prefs.Edit(c.service)
	if err != nil {
		wrapped := &PlatformError{Cause: err}
		c.store.auditFailure(actionSetSecret, requestID, c, start, wrapped)
		return wrapped
	}
	if err = editor.Put(c.user, envelope).Commit(); err != nil {
		wrapped := &PlatformError{Cause: err}
		c.store.auditFailure(actionSetSecret, requestID, c, start, wrapped)
		return wrapped
	}

	c.store.auditLog(actionSetSecret+"_COMPLETED", true, c.auditMeta(requestID, map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	}))
	return nil
}

// GetSecret retrieves and decrypts the secret for this (service, user).
// An absent entry returns ErrNoEntry; stored bytes that fail envelope framing
// or authentication return a BadDataFormatError carrying the raw bytes.
func (c *Credential) GetSecret() ([]byte, error) {
	requestID := uuid.NewString()
	start := time.Now()
	c.store.auditLog(actionGetSecret+"_INITIATED", true, c.auditMeta(requestID, nil))

	raw, ok, err := c.store.prefs.Get(c.service, c.user)
	if err != nil {
		wrapped := &PlatformError{Cause: err}
		c.store.auditFailure(actionGetSecret, requestID, c, start, wrapped)
		return nil, wrapped
	}
	if !ok {
		// Absence is a normal outcome, logged as a completion.
		c.store.auditLog(actionGetSecret+"_COMPLETED", true, c.auditMeta(requestID, map[string]interface{}{
			"outcome":     "no_entry",
			"duration_ms": time.Since(start).Milliseconds(),
		}))
		return nil, ErrNoEntry
	}

	iv, ciphertext, err := decodeEnvelope(raw)
	if err != nil {
		c.store.auditFailure(actionGetSecret, requestID, c, start, err)
		return nil, err
	}

	key, err := c.store.obtainKey(c.service)
	if err != nil {
		c.store.auditFailure(actionGetSecret, requestID, c, start, err)
		return nil, err
	}

	plaintext, err := c.store.cipher.Decrypt(key, iv, ciphertext)
	if err != nil {
		var reported error
		if errors.Is(err, keystore.ErrAuthentication) {
			reported = &BadDataFormatError{Raw: raw, Reason: &DecryptionFailureError{}}
		} else {
			reported = &PlatformError{Cause: err}
		}
		c.store.auditFailure(actionGetSecret, requestID, c, start, reported)
		return nil, reported
	}

	c.store.auditLog(actionGetSecret+"_COMPLETED", true, c.auditMeta(requestID, map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	}))
	return plaintext, nil
}

// SetPassword stores password as the secret for this (service, user).
func (c *Credential) SetPassword(password string) error {
	return c.SetSecret([]byte(password))
}

// GetPassword retrieves the secret as a string. Stored bytes that are not
// valid UTF-8 return a BadEncodingError; the bytes remain retrievable through
// GetSecret.
func (c *Credential) GetPassword() (string, error) {
	secret, err := c.GetSecret()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(secret) {
		return "", &BadEncodingError{Raw: secret}
	}
	return string(secret), nil
}

// DeleteCredential removes the entry for this (service, user). Deleting an
// entry that does not exist succeeds.
func (c *Credential) DeleteCredential() error {
	requestID := uuid.NewString()
	start := time.Now()
	c.store.auditLog(actionDeleteCredential+"_INITIATED", true, c.auditMeta(requestID, nil))

	editor, err := c.store.prefs.Edit(c.service)
	if err != nil {
		wrapped := &PlatformError{Cause: err}
		c.store.auditFailure(actionDeleteCredential, requestID, c, start, wrapped)
		return wrapped
	}
	if err = editor.Remove(c.user).Commit(); err != nil {
		wrapped := &PlatformError{Cause: err}
		c.store.auditFailure(actionDeleteCredential, requestID, c, start, wrapped)
		return wrapped
	}

	c.store.auditLog(actionDeleteCredential+"_COMPLETED", true, c.auditMeta(requestID, map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	}))
	return nil
}

// GetCredential validates that the entry exists and decrypts cleanly, then
// discards the plaintext. On success it always returns (nil, nil): this is a
// presence/integrity probe, not a retrieval path. Callers wanting the secret
// must use GetSecret.
func (c *Credential) GetCredential() (*Credential, error) {
	requestID := uuid.NewString()
	start := time.Now()
	c.store.auditLog(actionGetCredential+"_INITIATED", true, c.auditMeta(requestID, nil))

	if _, err := c.GetSecret(); err != nil {
		c.store.auditFailure(actionGetCredential, requestID, c, start, err)
		return nil, err
	}

	c.store.auditLog(actionGetCredential+"_COMPLETED", true, c.auditMeta(requestID, map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	}))
	return nil, nil
}

func (c *Credential) auditMeta(requestID string, extra map[string]interface{}) map[string]interface{} {
	metadata := map[string]interface{}{
		"request_id": requestID,
		"service":    c.service,
		"user":       c.user,
	}
	for k, v := range extra {
		metadata[k] = v
	}
	return metadata
}
