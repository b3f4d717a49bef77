package gateway

import (
	"context"
	"sync"

	pb "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Transaction is an endorsed transaction. It is submitted to the orderer and then
// followed until it commits.
type Transaction struct {
	client    *Client
	signer    Signer
	identity  Identity
	suite     *cryptosuite.Suite
	logger    logrus.FieldLogger
	channelID string
	prepared  *pb.PreparedTransaction
	envelope  *Envelope

	statusRequestOnce sync.Once
	statusRequest     *pb.SignedCommitStatusRequest
	statusRequestErr  error

	statusMu sync.Mutex
	status   *Status
}

func newTransaction(
	client *Client,
	signer Signer,
	identity Identity,
	suite *cryptosuite.Suite,
	logger logrus.FieldLogger,
	channelID string,
	prepared *pb.PreparedTransaction,
) *Transaction {
	return &Transaction{
		client:    client,
		signer:    signer,
		identity:  identity,
		suite:     suite,
		logger:    logger,
		channelID: channelID,
		prepared:  prepared,
		envelope:  NewEnvelope(prepared.GetEnvelope(), suite),
	}
}

func (t *Transaction) TransactionID() string                { return t.prepared.GetTransactionId() }
func (t *Transaction) ChannelID() string                    { return t.channelID }
func (t *Transaction) Envelope() *Envelope                  { return t.envelope }
func (t *Transaction) AsProto() *pb.PreparedTransaction     { return t.prepared }
func (t *Transaction) SubmitRequestDigest() []byte          { return t.envelope.PayloadDigest() }
func (t *Transaction) SubmitRequestSigned() bool            { return t.envelope.Signed() }
func (t *Transaction) SetSubmitRequestSignature(sig []byte) { t.envelope.SetSignature(sig) }

// SignSubmitRequest signs the envelope payload unless a signature is already present.
func (t *Transaction) SignSubmitRequest() error {
	if t.envelope.Signed() {
		return nil
	}
	if t.signer == nil {
		return ErrMissingSigner
	}
	signature, err := t.signer.Sign(t.envelope.PayloadBytes())
	if err != nil {
		return err
	}
	t.envelope.SetSignature(signature)
	return nil
}

// Submit sends the signed envelope to the orderer and returns once it is accepted.
func (t *Transaction) Submit(ctx context.Context, opts ...CallOption) (*Transaction, error) {
	if err := t.SignSubmitRequest(); err != nil {
		return nil, err
	}

	t.logger.Debug("submit")
	req := &pb.SubmitRequest{
		TransactionId:       t.TransactionID(),
		ChannelId:           t.channelID,
		PreparedTransaction: t.envelope.AsProto(),
	}
	if _, err := t.client.Submit(ctx, req, opts...); err != nil {
		return nil, err
	}
	return t, nil
}

// SignedCommitStatusRequest builds the commit status request once. The creator identity
// is serialized at that point and never again.
func (t *Transaction) SignedCommitStatusRequest() (*pb.SignedCommitStatusRequest, error) {
	t.statusRequestOnce.Do(func() {
		creator, err := t.identity.Serialize()
		if err != nil {
			t.statusRequestErr = errors.Wrap(err, "failed to serialize creator")
			return
		}
		request, err := marshal(&pb.CommitStatusRequest{
			TransactionId: t.TransactionID(),
			ChannelId:     t.channelID,
			Identity:      creator,
		}, "CommitStatusRequest")
		if err != nil {
			t.statusRequestErr = err
			return
		}
		t.statusRequest = &pb.SignedCommitStatusRequest{Request: request}
	})
	return t.statusRequest, t.statusRequestErr
}

func (t *Transaction) StatusRequestDigest() ([]byte, error) {
	req, err := t.SignedCommitStatusRequest()
	if err != nil {
		return nil, err
	}
	return t.suite.Digest(req.GetRequest()), nil
}

func (t *Transaction) SetStatusRequestSignature(signature []byte) error {
	req, err := t.SignedCommitStatusRequest()
	if err != nil {
		return err
	}
	req.Signature = signature
	return nil
}

func (t *Transaction) StatusRequestSigned() bool {
	req, err := t.SignedCommitStatusRequest()
	return err == nil && len(req.GetSignature()) > 0
}

// SignStatusRequest signs the commit status request unless it is already signed.
func (t *Transaction) SignStatusRequest() error {
	req, err := t.SignedCommitStatusRequest()
	if err != nil {
		return err
	}
	if len(req.GetSignature()) > 0 {
		return nil
	}
	if t.signer == nil {
		return ErrMissingSigner
	}
	signature, err := t.signer.Sign(req.GetRequest())
	if err != nil {
		return err
	}
	req.Signature = signature
	return nil
}

// Status blocks until the transaction commits and returns its status. A successful query
// is remembered; a failed one is retried on the next call.
func (t *Transaction) Status(ctx context.Context, opts ...CallOption) (*Status, error) {
	t.statusMu.Lock()
	defer t.statusMu.Unlock()

	if t.status != nil {
		return t.status, nil
	}

	if err := t.SignStatusRequest(); err != nil {
		return nil, err
	}
	req, err := t.SignedCommitStatusRequest()
	if err != nil {
		return nil, err
	}

	t.logger.Debug("commit status")
	resp, err := t.client.CommitStatus(ctx, req, opts...)
	if err != nil {
		return nil, err
	}

	t.status = NewStatus(t.TransactionID(), resp.GetBlockNumber(), resp.GetResult())
	t.logger.WithField("block", t.status.BlockNumber).Debugf("committed with %s", t.status.Code)
	return t.status, nil
}

// Result returns the chaincode response payload. With checkStatus it first waits for the
// commit and fails with a *CommitError if the transaction was invalidated.
func (t *Transaction) Result(ctx context.Context, checkStatus bool, opts ...CallOption) ([]byte, error) {
	if checkStatus {
		status, err := t.Status(ctx, opts...)
		if err != nil {
			return nil, err
		}
		if !status.Successful {
			return nil, &CommitError{Status: status}
		}
	}
	return t.envelope.Result()
}
