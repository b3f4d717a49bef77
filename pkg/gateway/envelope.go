package gateway

import (
	"sync"

	"github.com/hyperledger/fabric-protos-go/common"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
)

// Envelope decodes an endorsed transaction envelope on demand. Decoded parts are kept, so
// repeated calls do not decode again.
type Envelope struct {
	envelope *common.Envelope
	suite    *cryptosuite.Suite

	mu            sync.Mutex
	payload       *common.Payload
	channelHeader *common.ChannelHeader
	transaction   *peer.Transaction
	result        []byte
	hasResult     bool
}

func NewEnvelope(envelope *common.Envelope, suite *cryptosuite.Suite) *Envelope {
	if suite == nil {
		suite = cryptosuite.Default()
	}
	return &Envelope{envelope: envelope, suite: suite}
}

func (e *Envelope) AsProto() *common.Envelope { return e.envelope }
func (e *Envelope) PayloadBytes() []byte      { return e.envelope.GetPayload() }
func (e *Envelope) Signature() []byte         { return e.envelope.GetSignature() }

func (e *Envelope) PayloadDigest() []byte {
	return e.suite.Digest(e.envelope.GetPayload())
}

func (e *Envelope) Signed() bool {
	return len(e.envelope.GetSignature()) > 0
}

func (e *Envelope) SetSignature(signature []byte) {
	e.envelope.Signature = signature
}

func (e *Envelope) Payload() (*common.Payload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payloadLocked()
}

// Header returns the payload header. An envelope without one is malformed.
func (e *Envelope) Header() (*common.Header, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.headerLocked()
}

func (e *Envelope) ChannelHeader() (*common.ChannelHeader, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channelHeaderLocked()
}

func (e *Envelope) ChannelID() (string, error) {
	chdr, err := e.ChannelHeader()
	if err != nil {
		return "", err
	}
	return chdr.GetChannelId(), nil
}

func (e *Envelope) Transaction() (*peer.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transactionLocked()
}

// Result returns the chaincode response payload of the first transaction action that
// carries one. When no action does, the error lists why each action was rejected.
func (e *Envelope) Result() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasResult {
		return e.result, nil
	}

	tx, err := e.transactionLocked()
	if err != nil {
		return nil, err
	}

	var failures []error
	for i, action := range tx.GetActions() {
		result, err := parseActionResult(action)
		if err != nil {
			failures = append(failures, &ActionError{Index: i, Err: err})
			continue
		}
		e.result, e.hasResult = result, true
		return result, nil
	}

	return nil, &NoProposalResponseError{Errors: failures}
}

func (e *Envelope) payloadLocked() (*common.Payload, error) {
	if e.payload != nil {
		return e.payload, nil
	}
	payload, err := unmarshalPayload(e.envelope.GetPayload())
	if err != nil {
		return nil, err
	}
	e.payload = payload
	return payload, nil
}

func (e *Envelope) headerLocked() (*common.Header, error) {
	payload, err := e.payloadLocked()
	if err != nil {
		return nil, err
	}
	if payload.GetHeader() == nil {
		return nil, &MissingHeaderError{}
	}
	return payload.GetHeader(), nil
}

func (e *Envelope) channelHeaderLocked() (*common.ChannelHeader, error) {
	if e.channelHeader != nil {
		return e.channelHeader, nil
	}
	header, err := e.headerLocked()
	if err != nil {
		return nil, err
	}
	chdr, err := unmarshalChannelHeader(header.GetChannelHeader())
	if err != nil {
		return nil, err
	}
	e.channelHeader = chdr
	return chdr, nil
}

func (e *Envelope) transactionLocked() (*peer.Transaction, error) {
	if e.transaction != nil {
		return e.transaction, nil
	}
	payload, err := e.payloadLocked()
	if err != nil {
		return nil, err
	}
	tx, err := unmarshalTransaction(payload.GetData())
	if err != nil {
		return nil, err
	}
	e.transaction = tx
	return tx, nil
}

// parseActionResult walks action → endorsed action → proposal response payload →
// chaincode action → response.
func parseActionResult(action *peer.TransactionAction) ([]byte, error) {
	actionPayload, err := unmarshalChaincodeActionPayload(action.GetPayload())
	if err != nil {
		return nil, err
	}
	endorsed := actionPayload.GetAction()
	if endorsed == nil {
		return nil, ErrMissingEndorsedAction
	}

	prp, err := unmarshalProposalResponsePayload(endorsed.GetProposalResponsePayload())
	if err != nil {
		return nil, err
	}
	chaincodeAction, err := unmarshalChaincodeAction(prp.GetExtension())
	if err != nil {
		return nil, err
	}
	if chaincodeAction.GetResponse() == nil {
		return nil, ErrMissingChaincodeResponse
	}
	return chaincodeAction.GetResponse().GetPayload(), nil
}
