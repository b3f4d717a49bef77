package gateway

import (
	"context"

	pb "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/orderer"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type eventsOptions struct {
	startBlock         *uint64
	afterTransactionID string
}

// EventsOption positions a chaincode event stream.
type EventsOption func(*eventsOptions)

// WithStartBlock replays events from block onwards. Without it the stream starts at the
// next commit.
func WithStartBlock(block uint64) EventsOption {
	return func(o *eventsOptions) {
		o.startBlock = &block
	}
}

// WithAfterTransactionID skips events up to and including those of txid within the start
// block.
func WithAfterTransactionID(txid string) EventsOption {
	return func(o *eventsOptions) {
		o.afterTransactionID = txid
	}
}

// ChaincodeEventsRequest is a signable request for the events emitted by one chaincode.
type ChaincodeEventsRequest struct {
	client *Client
	signer Signer
	suite  *cryptosuite.Suite
	logger logrus.FieldLogger
	signed *pb.SignedChaincodeEventsRequest
}

// NewChaincodeEventsRequest builds an unsigned event request for chaincodeName on this
// channel.
func (n *Network) NewChaincodeEventsRequest(chaincodeName string, opts ...EventsOption) (*ChaincodeEventsRequest, error) {
	if chaincodeName == "" {
		return nil, newInvalidArgument("chaincode name is required")
	}

	o := &eventsOptions{}
	for _, opt := range opts {
		opt(o)
	}

	creator, err := n.identity.Serialize()
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize creator")
	}

	start := &orderer.SeekPosition{
		Type: &orderer.SeekPosition_NextCommit{NextCommit: &orderer.SeekNextCommit{}},
	}
	if o.startBlock != nil {
		start = &orderer.SeekPosition{
			Type: &orderer.SeekPosition_Specified{Specified: &orderer.SeekSpecified{Number: *o.startBlock}},
		}
	}

	request, err := marshal(&pb.ChaincodeEventsRequest{
		ChannelId:          n.name,
		ChaincodeId:        chaincodeName,
		Identity:           creator,
		StartPosition:      start,
		AfterTransactionId: o.afterTransactionID,
	}, "ChaincodeEventsRequest")
	if err != nil {
		return nil, err
	}

	return &ChaincodeEventsRequest{
		client: n.client,
		signer: n.signer,
		suite:  n.suite,
		logger: n.logger.WithField("chaincode", chaincodeName),
		signed: &pb.SignedChaincodeEventsRequest{Request: request},
	}, nil
}

// ChaincodeEvents signs and sends an event request in one step.
func (n *Network) ChaincodeEvents(ctx context.Context, chaincodeName string, opts ...EventsOption) (*ChaincodeEventsStream, error) {
	req, err := n.NewChaincodeEventsRequest(chaincodeName, opts...)
	if err != nil {
		return nil, err
	}
	return req.Events(ctx)
}

func (r *ChaincodeEventsRequest) Bytes() []byte     { return r.signed.GetRequest() }
func (r *ChaincodeEventsRequest) Digest() []byte    { return r.suite.Digest(r.signed.GetRequest()) }
func (r *ChaincodeEventsRequest) Signature() []byte { return r.signed.GetSignature() }
func (r *ChaincodeEventsRequest) Signed() bool      { return len(r.signed.GetSignature()) > 0 }

func (r *ChaincodeEventsRequest) SetSignature(signature []byte) {
	r.signed.Signature = signature
}

func (r *ChaincodeEventsRequest) Sign() error {
	if r.Signed() {
		return nil
	}
	if r.signer == nil {
		return ErrMissingSigner
	}
	signature, err := r.signer.Sign(r.signed.GetRequest())
	if err != nil {
		return err
	}
	r.SetSignature(signature)
	return nil
}

// Events signs the request if needed and opens the stream.
func (r *ChaincodeEventsRequest) Events(ctx context.Context, opts ...CallOption) (*ChaincodeEventsStream, error) {
	if err := r.Sign(); err != nil {
		return nil, err
	}

	r.logger.Debug("chaincode events")
	stream, cancel, err := r.client.ChaincodeEvents(ctx, r.signed, opts...)
	if err != nil {
		return nil, err
	}
	return &ChaincodeEventsStream{stream: stream, cancel: cancel}, nil
}

// ChaincodeEvent is one event together with the block and transaction that emitted it.
type ChaincodeEvent struct {
	BlockNumber   uint64 `json:"blockNumber"`
	TransactionID string `json:"transactionId"`
	ChaincodeName string `json:"chaincodeName"`
	EventName     string `json:"eventName"`
	Payload       []byte `json:"payload"`
}

func newChaincodeEvent(blockNumber uint64, event *peer.ChaincodeEvent) *ChaincodeEvent {
	return &ChaincodeEvent{
		BlockNumber:   blockNumber,
		TransactionID: event.GetTxId(),
		ChaincodeName: event.GetChaincodeId(),
		EventName:     event.GetEventName(),
		Payload:       event.GetPayload(),
	}
}

// ChaincodeEventsStream reads chaincode events until Close is called or the context ends.
type ChaincodeEventsStream struct {
	stream  pb.Gateway_ChaincodeEventsClient
	cancel  context.CancelFunc
	pending []*ChaincodeEvent
}

// Recv returns the raw response holding all events of one block.
func (s *ChaincodeEventsStream) Recv() (*pb.ChaincodeEventsResponse, error) {
	return s.stream.Recv()
}

// Next returns events one at a time, reading a new block when the current one is used up.
func (s *ChaincodeEventsStream) Next() (*ChaincodeEvent, error) {
	for len(s.pending) == 0 {
		resp, err := s.stream.Recv()
		if err != nil {
			return nil, err
		}
		for _, event := range resp.GetEvents() {
			s.pending = append(s.pending, newChaincodeEvent(resp.GetBlockNumber(), event))
		}
	}
	event := s.pending[0]
	s.pending = s.pending[1:]
	return event, nil
}

func (s *ChaincodeEventsStream) Close() {
	s.cancel()
}
