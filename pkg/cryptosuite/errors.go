package cryptosuite

import "fmt"

// CryptoError reports malformed key material or signatures.
type CryptoError struct {
	Op  string
	Err error
}

func newCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// Cause lets errors.Cause from pkg/errors reach the underlying error.
func (e *CryptoError) Cause() error { return e.Err }
