package infra

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"strings"
	"testing"

	pb "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/osdi23p228/fabgw/pkg/gateway"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateUsesConfiguredArgs(t *testing.T) {
	g := newFakeGateway()
	g.result = []byte("asset1 value")
	c := newTestConfig(t, startFakeGateway(t, g), 1)

	result, err := Evaluate(context.Background(), c, quietLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, "asset1 value", string(result))

	require.Len(t, g.evaluated, 1)
	assert.Equal(t, "mychannel", g.evaluated[0].GetChannelId())
	assert.NotEmpty(t, g.evaluated[0].GetProposedTransaction().GetSignature())
}

func TestEvaluateWithoutFunction(t *testing.T) {
	c := &Config{}
	_, err := Evaluate(context.Background(), c, quietLogger(), nil)
	assert.EqualError(t, err, "no transaction function given")
}

func TestSubmitWaitsForCommit(t *testing.T) {
	g := newFakeGateway()
	c := newTestConfig(t, startFakeGateway(t, g), 1)

	result, err := Submit(context.Background(), c, quietLogger(), []string{"CreateAsset", "asset2", "blue"})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(result.Result))
	require.NotNil(t, result.Status)
	assert.True(t, result.Status.Successful)
	assert.Equal(t, result.TransactionID, result.Status.TransactionID)
	assert.Contains(t, g.endorseRequests(), result.TransactionID)
}

func TestSubmitReportsInvalidCommit(t *testing.T) {
	g := newFakeGateway()
	g.abortEvery = 1
	c := newTestConfig(t, startFakeGateway(t, g), 1)

	result, err := Submit(context.Background(), c, quietLogger(), []string{"CreateAsset", "asset2"})
	require.Error(t, err)

	var commitErr *gateway.CommitError
	require.True(t, errors.As(err, &commitErr))
	assert.Equal(t, peer.TxValidationCode_MVCC_READ_CONFLICT, commitErr.Status.Code)
	assert.Equal(t, result.TransactionID, commitErr.Status.TransactionID)
}

func TestEventsWritesJSONLines(t *testing.T) {
	g := newFakeGateway()
	g.events = []*pb.ChaincodeEventsResponse{
		{BlockNumber: 3, Events: []*peer.ChaincodeEvent{
			{ChaincodeId: "basic", TxId: "tx1", EventName: "Created", Payload: []byte("a")},
			{ChaincodeId: "basic", TxId: "tx2", EventName: "Updated", Payload: []byte("b")},
		}},
		{BlockNumber: 4, Events: []*peer.ChaincodeEvent{
			{ChaincodeId: "basic", TxId: "tx3", EventName: "Deleted"},
		}},
	}
	c := newTestConfig(t, startFakeGateway(t, g), 1)

	var out bytes.Buffer
	start := uint64(3)
	count, err := Events(context.Background(), c, quietLogger(), NewJSONSink(&out), EventsOptions{
		StartBlock: &start,
		AfterTxID:  "tx0",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	event := &gateway.ChaincodeEvent{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), event))
	assert.Equal(t, gateway.ChaincodeEvent{
		BlockNumber:   3,
		TransactionID: "tx2",
		ChaincodeName: "basic",
		EventName:     "Updated",
		Payload:       []byte("b"),
	}, *event)

	require.Len(t, g.eventsReqs, 1)
	req := g.eventsReqs[0]
	assert.Equal(t, "basic", req.GetChaincodeId())
	assert.Equal(t, "tx0", req.GetAfterTransactionId())
	assert.Equal(t, uint64(3), req.GetStartPosition().GetSpecified().GetNumber())
}

func TestEventsStopsAtLimit(t *testing.T) {
	g := newFakeGateway()
	g.events = []*pb.ChaincodeEventsResponse{
		{BlockNumber: 1, Events: []*peer.ChaincodeEvent{{TxId: "tx1"}, {TxId: "tx2"}}},
	}
	c := newTestConfig(t, startFakeGateway(t, g), 1)

	var out bytes.Buffer
	count, err := Events(context.Background(), c, quietLogger(), NewJSONSink(&out), EventsOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NotNil(t, g.eventsReqs[0].GetStartPosition().GetNextCommit())
}

func TestKeygen(t *testing.T) {
	suite := cryptosuite.Default()
	info, err := Keygen(suite, "Org1MSP", "user3")
	require.NoError(t, err)

	publicKey, err := suite.RestorePublicKey(info.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, publicKey, info.PublicKey)

	address, err := suite.AddressFromPublicKey(info.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, address, info.Address)

	block, _ := pem.Decode([]byte(info.CSR))
	require.NotNil(t, block)
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "user3", csr.Subject.CommonName)
	assert.Equal(t, []string{"Org1MSP"}, csr.Subject.Organization)
	assert.NoError(t, csr.CheckSignature())
}
