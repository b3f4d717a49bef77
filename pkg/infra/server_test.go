package infra

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/common"
	pb "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeGateway answers gateway calls in process. Every abortEvery-th commit status request
// reports an MVCC conflict and every failSubmitEvery-th submit is refused.
type fakeGateway struct {
	pb.UnimplementedGatewayServer

	mu              sync.Mutex
	result          []byte
	abortEvery      int
	failSubmitEvery int
	statusCalls     int
	submitCalls     int
	endorsed        map[string]*pb.EndorseRequest
	submitted       map[string]bool
	evaluated       []*pb.EvaluateRequest
	events          []*pb.ChaincodeEventsResponse
	eventsReqs      []*pb.ChaincodeEventsRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		result:    []byte("ok"),
		endorsed:  map[string]*pb.EndorseRequest{},
		submitted: map[string]bool{},
	}
}

func mustMarshal(t testing.TB, msg proto.Message) []byte {
	raw, err := proto.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func (g *fakeGateway) preparedEnvelope(req *pb.EndorseRequest) (*common.Envelope, error) {
	chaincodeAction, err := proto.Marshal(&peer.ChaincodeAction{
		Response: &peer.Response{Status: 200, Payload: g.result},
	})
	if err != nil {
		return nil, err
	}
	prp, err := proto.Marshal(&peer.ProposalResponsePayload{Extension: chaincodeAction})
	if err != nil {
		return nil, err
	}
	actionPayload, err := proto.Marshal(&peer.ChaincodeActionPayload{
		Action: &peer.ChaincodeEndorsedAction{ProposalResponsePayload: prp},
	})
	if err != nil {
		return nil, err
	}
	tx, err := proto.Marshal(&peer.Transaction{Actions: []*peer.TransactionAction{{Payload: actionPayload}}})
	if err != nil {
		return nil, err
	}
	channelHeader, err := proto.Marshal(&common.ChannelHeader{
		Type:      int32(common.HeaderType_ENDORSER_TRANSACTION),
		ChannelId: req.GetChannelId(),
		TxId:      req.GetTransactionId(),
	})
	if err != nil {
		return nil, err
	}
	payload, err := proto.Marshal(&common.Payload{
		Header: &common.Header{ChannelHeader: channelHeader},
		Data:   tx,
	})
	if err != nil {
		return nil, err
	}
	return &common.Envelope{Payload: payload}, nil
}

func (g *fakeGateway) Endorse(_ context.Context, req *pb.EndorseRequest) (*pb.EndorseResponse, error) {
	if len(req.GetProposedTransaction().GetSignature()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "unsigned proposal")
	}

	g.mu.Lock()
	g.endorsed[req.GetTransactionId()] = req
	g.mu.Unlock()

	env, err := g.preparedEnvelope(req)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &pb.EndorseResponse{PreparedTransaction: env}, nil
}

func (g *fakeGateway) Submit(_ context.Context, req *pb.SubmitRequest) (*pb.SubmitResponse, error) {
	if len(req.GetPreparedTransaction().GetSignature()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "unsigned transaction")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls++
	if g.failSubmitEvery > 0 && g.submitCalls%g.failSubmitEvery == 0 {
		return nil, status.Error(codes.Aborted, "orderer refused the transaction")
	}
	g.submitted[req.GetTransactionId()] = true
	return &pb.SubmitResponse{}, nil
}

func (g *fakeGateway) CommitStatus(_ context.Context, signed *pb.SignedCommitStatusRequest) (*pb.CommitStatusResponse, error) {
	req := &pb.CommitStatusRequest{}
	if err := proto.Unmarshal(signed.GetRequest(), req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.submitted[req.GetTransactionId()] {
		return nil, status.Errorf(codes.NotFound, "transaction %s was not submitted", req.GetTransactionId())
	}

	g.statusCalls++
	code := peer.TxValidationCode_VALID
	if g.abortEvery > 0 && g.statusCalls%g.abortEvery == 0 {
		code = peer.TxValidationCode_MVCC_READ_CONFLICT
	}
	return &pb.CommitStatusResponse{Result: code, BlockNumber: uint64(g.statusCalls)}, nil
}

func (g *fakeGateway) Evaluate(_ context.Context, req *pb.EvaluateRequest) (*pb.EvaluateResponse, error) {
	g.mu.Lock()
	g.evaluated = append(g.evaluated, req)
	g.mu.Unlock()
	return &pb.EvaluateResponse{Result: &peer.Response{Status: 200, Payload: g.result}}, nil
}

func (g *fakeGateway) ChaincodeEvents(signed *pb.SignedChaincodeEventsRequest, stream pb.Gateway_ChaincodeEventsServer) error {
	req := &pb.ChaincodeEventsRequest{}
	if err := proto.Unmarshal(signed.GetRequest(), req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	g.mu.Lock()
	g.eventsReqs = append(g.eventsReqs, req)
	events := g.events
	g.mu.Unlock()

	for _, resp := range events {
		if err := stream.Send(resp); err != nil {
			return err
		}
	}
	return nil
}

func (g *fakeGateway) endorseRequests() map[string]*pb.EndorseRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]*pb.EndorseRequest, len(g.endorsed))
	for k, v := range g.endorsed {
		out[k] = v
	}
	return out
}

// startFakeGateway serves g on a loopback port until the test ends.
func startFakeGateway(t *testing.T, g *fakeGateway) string {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	pb.RegisterGatewayServer(server, g)
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	return lis.Addr().String()
}

const testConfigTemplate = `
gateway:
  address: %s
channel: mychannel
chaincode: basic
args: ["ReadAsset", "asset1"]
mspid: Org1MSP
privateKey: %s
signCert: %s
txNum: %d
rate: 0
burst: 10
connNum: 2
clientPerConnNum: 2
signerNum: 2
submitterNum: 2
observerNum: 4
endorseTimeout: 5s
submitTimeout: 5s
commitStatusTimeout: 5s
idleTimeout: 10s
session: test
seed: 7
logPath: %s
reportPath: %s
`

// newTestConfig writes a config pointing at address into a temp dir and loads it. The
// workload files are redirected into the same dir.
func newTestConfig(t *testing.T, address string, txNum int) *Config {
	dir := t.TempDir()
	key, err := filepath.Abs("testdata/user1_key.pem")
	require.NoError(t, err)
	cert, err := filepath.Abs("testdata/user1_cert.pem")
	require.NoError(t, err)

	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(testConfigTemplate, address, key, cert, txNum,
		filepath.Join(dir, "log.transactions"), filepath.Join(dir, "report.txt"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	setWorkloadFiles(t, dir)

	c, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	return c
}

func setWorkloadFiles(t *testing.T, dir string) {
	accounts, transactions := accountFilePath, transactionFilePath
	accountFilePath = filepath.Join(dir, "ACCOUNTS.txt")
	transactionFilePath = filepath.Join(dir, "TRANSACTIONS.txt")
	t.Cleanup(func() {
		accountFilePath, transactionFilePath = accounts, transactions
	})
}
