package gateway

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var (
	// ErrMissingEndorsedAction is reported for a transaction action without an endorsed action.
	ErrMissingEndorsedAction = errors.New("missing endorsed action")

	// ErrMissingChaincodeResponse is reported for a chaincode action without a response.
	ErrMissingChaincodeResponse = errors.New("missing chaincode response")

	// ErrMissingSigner is returned by Sign when the gateway was created with an identity
	// that cannot sign. Use Digest and SetSignature to sign offline instead.
	ErrMissingSigner = errors.New("no signer available, the signature must be set explicitly")
)

// InvalidArgumentError is returned when an object is constructed from unusable arguments.
type InvalidArgumentError struct {
	Message string
}

func newInvalidArgument(format string, args ...interface{}) *InvalidArgumentError {
	return &InvalidArgumentError{Message: fmt.Sprintf(format, args...)}
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Message
}

// MissingHeaderError is returned when an envelope payload carries no header.
type MissingHeaderError struct{}

func (e *MissingHeaderError) Error() string {
	return "missing header"
}

// MissingEnvelopeError is returned when an endorse response has no prepared transaction.
type MissingEnvelopeError struct {
	TransactionID string
}

func (e *MissingEnvelopeError) Error() string {
	return fmt.Sprintf("missing transaction envelope for transaction %s", e.TransactionID)
}

// ActionError records why one transaction action did not yield a chaincode response.
type ActionError struct {
	Index int
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %d: %v", e.Index, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// NoProposalResponseError is returned when no action of a transaction carries a chaincode
// response. Errors holds one *ActionError per action, in action order.
type NoProposalResponseError struct {
	Errors []error
}

func (e *NoProposalResponseError) Error() string {
	combined := multierr.Combine(e.Errors...)
	if combined == nil {
		return "no proposal response found: []"
	}
	return fmt.Sprintf("no proposal response found: [%v]", combined)
}

// CommitError is returned when the result of a transaction that failed to commit is
// requested.
type CommitError struct {
	Status *Status
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("transaction %s failed to commit with status code %d (%s)",
		e.Status.TransactionID, int32(e.Status.Code), e.Status.Code)
}
