package gateway

import (
	"context"
	"io"

	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/common"
	pb "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/stretchr/testify/mock"
	"google.golang.org/grpc"
)

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) Endorse(ctx context.Context, in *pb.EndorseRequest, opts ...grpc.CallOption) (*pb.EndorseResponse, error) {
	args := m.Called(ctx, in)
	resp, _ := args.Get(0).(*pb.EndorseResponse)
	return resp, args.Error(1)
}

func (m *MockGatewayClient) Submit(ctx context.Context, in *pb.SubmitRequest, opts ...grpc.CallOption) (*pb.SubmitResponse, error) {
	args := m.Called(ctx, in)
	resp, _ := args.Get(0).(*pb.SubmitResponse)
	return resp, args.Error(1)
}

func (m *MockGatewayClient) CommitStatus(ctx context.Context, in *pb.SignedCommitStatusRequest, opts ...grpc.CallOption) (*pb.CommitStatusResponse, error) {
	args := m.Called(ctx, in)
	resp, _ := args.Get(0).(*pb.CommitStatusResponse)
	return resp, args.Error(1)
}

func (m *MockGatewayClient) Evaluate(ctx context.Context, in *pb.EvaluateRequest, opts ...grpc.CallOption) (*pb.EvaluateResponse, error) {
	args := m.Called(ctx, in)
	resp, _ := args.Get(0).(*pb.EvaluateResponse)
	return resp, args.Error(1)
}

func (m *MockGatewayClient) ChaincodeEvents(ctx context.Context, in *pb.SignedChaincodeEventsRequest, opts ...grpc.CallOption) (pb.Gateway_ChaincodeEventsClient, error) {
	args := m.Called(ctx, in)
	stream, _ := args.Get(0).(pb.Gateway_ChaincodeEventsClient)
	return stream, args.Error(1)
}

type MockSigner struct {
	mock.Mock
}

func (m *MockSigner) Serialize() ([]byte, error) {
	args := m.Called()
	raw, _ := args.Get(0).([]byte)
	return raw, args.Error(1)
}

func (m *MockSigner) Sign(message []byte) ([]byte, error) {
	args := m.Called(message)
	raw, _ := args.Get(0).([]byte)
	return raw, args.Error(1)
}

func newMockSigner() *MockSigner {
	signer := &MockSigner{}
	signer.On("Serialize").Return([]byte("creator"), nil)
	signer.On("Sign", mock.Anything).Return([]byte("signature"), nil)
	return signer
}

// fakeEventsStream replays responses and then reports io.EOF.
type fakeEventsStream struct {
	grpc.ClientStream
	responses []*pb.ChaincodeEventsResponse
}

func (s *fakeEventsStream) Recv() (*pb.ChaincodeEventsResponse, error) {
	if len(s.responses) == 0 {
		return nil, io.EOF
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func mustMarshal(msg proto.Message) []byte {
	raw, err := proto.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return raw
}

// actionWithResult is a well formed transaction action carrying payload as the chaincode
// response.
func actionWithResult(payload []byte) *peer.TransactionAction {
	chaincodeAction := mustMarshal(&peer.ChaincodeAction{
		Response: &peer.Response{Status: 200, Payload: payload},
	})
	prp := mustMarshal(&peer.ProposalResponsePayload{Extension: chaincodeAction})
	return &peer.TransactionAction{
		Payload: mustMarshal(&peer.ChaincodeActionPayload{
			Action: &peer.ChaincodeEndorsedAction{ProposalResponsePayload: prp},
		}),
	}
}

func actionWithoutEndorsement() *peer.TransactionAction {
	return &peer.TransactionAction{
		Payload: mustMarshal(&peer.ChaincodeActionPayload{ChaincodeProposalPayload: []byte("input")}),
	}
}

func actionWithoutResponse() *peer.TransactionAction {
	prp := mustMarshal(&peer.ProposalResponsePayload{
		Extension: mustMarshal(&peer.ChaincodeAction{Results: []byte("rwset")}),
	})
	return &peer.TransactionAction{
		Payload: mustMarshal(&peer.ChaincodeActionPayload{
			Action: &peer.ChaincodeEndorsedAction{ProposalResponsePayload: prp},
		}),
	}
}

func newTestEnvelope(channelID string, actions ...*peer.TransactionAction) *common.Envelope {
	payload := &common.Payload{
		Header: &common.Header{
			ChannelHeader: mustMarshal(&common.ChannelHeader{
				Type:      int32(common.HeaderType_ENDORSER_TRANSACTION),
				ChannelId: channelID,
			}),
		},
		Data: mustMarshal(&peer.Transaction{Actions: actions}),
	}
	return &common.Envelope{Payload: mustMarshal(payload)}
}
