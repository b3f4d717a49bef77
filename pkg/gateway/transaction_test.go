package gateway

import (
	"context"
	"testing"

	"github.com/golang/protobuf/proto"
	pb "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestTransaction(t *testing.T, stub *MockGatewayClient, signer Signer) *Transaction {
	t.Helper()
	client, err := NewClientFromStub(stub)
	require.NoError(t, err)

	prepared := &pb.PreparedTransaction{
		TransactionId: "txid1",
		Envelope:      newTestEnvelope("mychannel", actionWithResult([]byte("result"))),
	}
	var id Identity = signer
	return newTransaction(client, signer, id, cryptosuite.Default(), quietLogger(), "mychannel", prepared)
}

func TestStatusIsMemoized(t *testing.T) {
	stub := &MockGatewayClient{}
	stub.On("CommitStatus", mock.Anything, mock.Anything).
		Return(&pb.CommitStatusResponse{Result: peer.TxValidationCode_VALID, BlockNumber: 101}, nil).Once()

	tx := newTestTransaction(t, stub, newMockSigner())
	for i := 0; i < 5; i++ {
		status, err := tx.Status(context.Background())
		require.NoError(t, err)
		assert.True(t, status.Successful)
		assert.Equal(t, uint64(101), status.BlockNumber)
		assert.Equal(t, "txid1", status.TransactionID)
	}
	stub.AssertNumberOfCalls(t, "CommitStatus", 1)
}

func TestStatusErrorIsNotMemoized(t *testing.T) {
	stub := &MockGatewayClient{}
	stub.On("CommitStatus", mock.Anything, mock.Anything).Return(nil, errors.New("deadline exceeded")).Once()
	stub.On("CommitStatus", mock.Anything, mock.Anything).
		Return(&pb.CommitStatusResponse{Result: peer.TxValidationCode_VALID, BlockNumber: 7}, nil).Once()

	tx := newTestTransaction(t, stub, newMockSigner())
	_, err := tx.Status(context.Background())
	assert.Error(t, err)

	status, err := tx.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), status.BlockNumber)
	stub.AssertNumberOfCalls(t, "CommitStatus", 2)
}

func TestCommitStatusRequest(t *testing.T) {
	stub := &MockGatewayClient{}
	signer := newMockSigner()
	tx := newTestTransaction(t, stub, signer)

	first, err := tx.SignedCommitStatusRequest()
	require.NoError(t, err)
	second, err := tx.SignedCommitStatusRequest()
	require.NoError(t, err)
	assert.Same(t, first, second)
	signer.AssertNumberOfCalls(t, "Serialize", 1)

	req := &pb.CommitStatusRequest{}
	require.NoError(t, proto.Unmarshal(first.Request, req))
	assert.Equal(t, "txid1", req.TransactionId)
	assert.Equal(t, "mychannel", req.ChannelId)
	assert.Equal(t, []byte("creator"), req.Identity)

	digest, err := tx.StatusRequestDigest()
	require.NoError(t, err)
	assert.Equal(t, cryptosuite.Default().Digest(first.Request), digest)

	assert.False(t, tx.StatusRequestSigned())
	require.NoError(t, tx.SignStatusRequest())
	require.NoError(t, tx.SignStatusRequest())
	assert.True(t, tx.StatusRequestSigned())
	signer.AssertNumberOfCalls(t, "Sign", 1)
}

func TestResultChecksCommitStatus(t *testing.T) {
	stub := &MockGatewayClient{}
	stub.On("CommitStatus", mock.Anything, mock.Anything).
		Return(&pb.CommitStatusResponse{Result: peer.TxValidationCode_BAD_PAYLOAD, BlockNumber: 3}, nil)

	tx := newTestTransaction(t, stub, newMockSigner())
	_, err := tx.Result(context.Background(), true)

	var commitErr *CommitError
	require.True(t, errors.As(err, &commitErr))
	assert.Equal(t, peer.TxValidationCode_BAD_PAYLOAD, commitErr.Status.Code)
	assert.False(t, commitErr.Status.Successful)
	assert.Contains(t, err.Error(), "txid1")
	assert.Contains(t, err.Error(), "status code 2")
}

func TestResultWithoutStatusCheck(t *testing.T) {
	stub := &MockGatewayClient{}
	tx := newTestTransaction(t, stub, newMockSigner())

	result, err := tx.Result(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []byte("result"), result)
	stub.AssertNotCalled(t, "CommitStatus", mock.Anything, mock.Anything)
}

func TestResultAfterValidCommit(t *testing.T) {
	stub := &MockGatewayClient{}
	stub.On("CommitStatus", mock.Anything, mock.Anything).
		Return(&pb.CommitStatusResponse{Result: peer.TxValidationCode_VALID}, nil)

	result, err := newTestTransaction(t, stub, newMockSigner()).Result(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []byte("result"), result)
}

func TestSubmit(t *testing.T) {
	stub := &MockGatewayClient{}
	signer := newMockSigner()
	tx := newTestTransaction(t, stub, signer)

	stub.On("Submit", mock.Anything, mock.MatchedBy(func(req *pb.SubmitRequest) bool {
		return req.TransactionId == "txid1" &&
			req.ChannelId == "mychannel" &&
			string(req.PreparedTransaction.Signature) == "signature"
	})).Return(&pb.SubmitResponse{}, nil).Once()

	assert.False(t, tx.SubmitRequestSigned())
	submitted, err := tx.Submit(context.Background())
	require.NoError(t, err)
	assert.Same(t, tx, submitted)
	assert.True(t, tx.SubmitRequestSigned())
	signer.AssertCalled(t, "Sign", tx.Envelope().PayloadBytes())
	stub.AssertExpectations(t)
}

func TestSubmitOfflineSignature(t *testing.T) {
	stub := &MockGatewayClient{}
	client, err := NewClientFromStub(stub)
	require.NoError(t, err)
	prepared := &pb.PreparedTransaction{
		TransactionId: "txid1",
		Envelope:      newTestEnvelope("mychannel", actionWithResult([]byte("result"))),
	}
	tx := newTransaction(client, nil, newMockSigner(), cryptosuite.Default(), quietLogger(), "mychannel", prepared)

	_, err = tx.Submit(context.Background())
	assert.Equal(t, ErrMissingSigner, err)

	assert.Equal(t, cryptosuite.Default().Digest(prepared.Envelope.Payload), tx.SubmitRequestDigest())
	tx.SetSubmitRequestSignature([]byte("offline"))
	stub.On("Submit", mock.Anything, mock.Anything).Return(&pb.SubmitResponse{}, nil)
	_, err = tx.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ErrMissingSigner, tx.SignStatusRequest())
	require.NoError(t, tx.SetStatusRequestSignature([]byte("offline status")))
	stub.On("CommitStatus", mock.Anything, mock.MatchedBy(func(req *pb.SignedCommitStatusRequest) bool {
		return string(req.Signature) == "offline status"
	})).Return(&pb.CommitStatusResponse{Result: peer.TxValidationCode_MVCC_READ_CONFLICT}, nil)

	status, err := tx.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, peer.TxValidationCode_MVCC_READ_CONFLICT, status.Code)
	assert.False(t, status.Successful)
}

func TestContractSubmit(t *testing.T) {
	stub := &MockGatewayClient{}
	stub.On("Endorse", mock.Anything, mock.Anything).
		Return(&pb.EndorseResponse{PreparedTransaction: newTestEnvelope("mychannel", actionWithResult([]byte("done")))}, nil)
	stub.On("Submit", mock.Anything, mock.Anything).Return(&pb.SubmitResponse{}, nil)
	stub.On("CommitStatus", mock.Anything, mock.Anything).
		Return(&pb.CommitStatusResponse{Result: peer.TxValidationCode_VALID, BlockNumber: 9}, nil)

	contract := newTestNetwork(t, stub, newMockSigner()).Contract("basic", "")
	result, err := contract.SubmitTransaction(context.Background(), "CreateAsset", "a1")
	require.NoError(t, err)
	assert.Equal(t, []byte("done"), result)

	tx, err := contract.SubmitAsync(context.Background(), "CreateAsset", WithArguments("a2"))
	require.NoError(t, err)
	status, err := tx.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(9), status.BlockNumber)
}

func TestValidationCode(t *testing.T) {
	code, err := ValidationCode("MVCC_READ_CONFLICT")
	require.NoError(t, err)
	assert.Equal(t, peer.TxValidationCode(11), code)

	_, err = ValidationCode("NOPE")
	assert.Error(t, err)
}
