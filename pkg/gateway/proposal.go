package gateway

import (
	"context"

	pb "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/sirupsen/logrus"
)

// Proposal is a signable transaction proposal. It may be evaluated, or endorsed into a
// Transaction.
type Proposal struct {
	client              *Client
	signer              Signer
	suite               *cryptosuite.Suite
	logger              logrus.FieldLogger
	channelID           string
	transactionID       string
	proposedTransaction *ProposedTransaction
	signedProposal      *peer.SignedProposal
}

func newProposal(client *Client, signer Signer, suite *cryptosuite.Suite, logger logrus.FieldLogger, pt *ProposedTransaction) (*Proposal, error) {
	signed, err := pt.SignedProposal()
	if err != nil {
		return nil, err
	}
	txid, err := pt.TransactionID()
	if err != nil {
		return nil, err
	}
	return &Proposal{
		client:              client,
		signer:              signer,
		suite:               suite,
		logger:              logger.WithField("txid", txid),
		channelID:           pt.ChannelID(),
		transactionID:       txid,
		proposedTransaction: pt,
		signedProposal:      signed,
	}, nil
}

func (p *Proposal) TransactionID() string                     { return p.transactionID }
func (p *Proposal) ProposedTransaction() *ProposedTransaction { return p.proposedTransaction }

// Bytes returns the serialized proposal, the exact bytes that get signed.
func (p *Proposal) Bytes() []byte {
	return p.signedProposal.ProposalBytes
}

func (p *Proposal) Digest() []byte {
	return p.suite.Digest(p.signedProposal.ProposalBytes)
}

func (p *Proposal) Signature() []byte {
	return p.signedProposal.Signature
}

func (p *Proposal) SetSignature(signature []byte) {
	p.signedProposal.Signature = signature
}

func (p *Proposal) Signed() bool {
	return len(p.signedProposal.Signature) > 0
}

// Sign signs the proposal bytes unless a signature is already present.
func (p *Proposal) Sign() error {
	if p.Signed() {
		return nil
	}
	if p.signer == nil {
		return ErrMissingSigner
	}
	signature, err := p.signer.Sign(p.signedProposal.ProposalBytes)
	if err != nil {
		return err
	}
	p.SetSignature(signature)
	return nil
}

// Evaluate signs the proposal if needed and returns the chaincode response payload.
func (p *Proposal) Evaluate(ctx context.Context, opts ...CallOption) ([]byte, error) {
	if err := p.Sign(); err != nil {
		return nil, err
	}

	p.logger.Debug("evaluate")
	resp, err := p.client.Evaluate(ctx, p.newEvaluateRequest(), opts...)
	if err != nil {
		return nil, err
	}
	if resp.GetResult() == nil {
		return nil, ErrMissingChaincodeResponse
	}
	return resp.GetResult().GetPayload(), nil
}

// Endorse signs the proposal if needed and collects the endorsements into a prepared
// Transaction.
func (p *Proposal) Endorse(ctx context.Context, opts ...CallOption) (*Transaction, error) {
	if err := p.Sign(); err != nil {
		return nil, err
	}

	p.logger.Debug("endorse")
	resp, err := p.client.Endorse(ctx, p.newEndorseRequest(), opts...)
	if err != nil {
		return nil, err
	}
	if len(resp.GetPreparedTransaction().GetPayload()) == 0 {
		return nil, &MissingEnvelopeError{TransactionID: p.transactionID}
	}

	prepared := &pb.PreparedTransaction{
		TransactionId: p.transactionID,
		Envelope:      resp.GetPreparedTransaction(),
	}
	identity := p.proposedTransaction.identity
	return newTransaction(p.client, p.signer, identity, p.suite, p.logger, p.channelID, prepared), nil
}

func (p *Proposal) newEvaluateRequest() *pb.EvaluateRequest {
	return &pb.EvaluateRequest{
		TransactionId:       p.transactionID,
		ChannelId:           p.channelID,
		ProposedTransaction: p.signedProposal,
		TargetOrganizations: p.proposedTransaction.endorsingOrganizations,
	}
}

func (p *Proposal) newEndorseRequest() *pb.EndorseRequest {
	return &pb.EndorseRequest{
		TransactionId:          p.transactionID,
		ChannelId:              p.channelID,
		ProposedTransaction:    p.signedProposal,
		EndorsingOrganizations: p.proposedTransaction.endorsingOrganizations,
	}
}
