package gateway

import (
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/common"
	pb "github.com/hyperledger/fabric-protos-go/gateway"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ProposedTransaction holds the wire form of a transaction proposal. The nonce, the
// transaction id and the proposal messages are derived once per instance.
type ProposedTransaction struct {
	channelID              string
	chaincodeName          string
	transactionName        string
	arguments              [][]byte
	transient              map[string][]byte
	endorsingOrganizations []string
	identity               Identity
	suite                  *cryptosuite.Suite
	now                    func() time.Time

	idOnce        sync.Once
	creator       []byte
	nonce         []byte
	transactionID string
	idErr         error

	buildOnce sync.Once
	proposal  *peer.Proposal
	signed    *peer.SignedProposal
	proposed  *pb.ProposedTransaction
	buildErr  error
}

// NewProposedTransaction validates its input without building anything. transactionName
// is already qualified with the contract name, if any.
func NewProposedTransaction(
	channelID, chaincodeName, transactionName string,
	identity Identity,
	suite *cryptosuite.Suite,
	opts ...ProposalOption,
) (*ProposedTransaction, error) {
	if channelID == "" {
		return nil, newInvalidArgument("channel name is required")
	}
	if chaincodeName == "" {
		return nil, newInvalidArgument("chaincode name is required")
	}
	if transactionName == "" {
		return nil, newInvalidArgument("transaction name is required")
	}
	if identity == nil {
		return nil, newInvalidArgument("an identity is required")
	}
	if suite == nil {
		suite = cryptosuite.Default()
	}

	o := &proposalOptions{}
	for _, opt := range opts {
		opt(o)
	}

	return &ProposedTransaction{
		channelID:              channelID,
		chaincodeName:          chaincodeName,
		transactionName:        transactionName,
		arguments:              o.arguments,
		transient:              o.transient,
		endorsingOrganizations: o.endorsingOrganizations,
		identity:               identity,
		suite:                  suite,
		now:                    time.Now,
	}, nil
}

func (pt *ProposedTransaction) ChannelID() string                { return pt.channelID }
func (pt *ProposedTransaction) ChaincodeName() string            { return pt.chaincodeName }
func (pt *ProposedTransaction) TransactionName() string          { return pt.transactionName }
func (pt *ProposedTransaction) EndorsingOrganizations() []string { return pt.endorsingOrganizations }

// transactionContext derives the nonce and the transaction id. The id is
// hex(digest(nonce ++ creator)) and is computed before any message is built.
func (pt *ProposedTransaction) transactionContext() error {
	pt.idOnce.Do(func() {
		creator, err := pt.identity.Serialize()
		if err != nil {
			pt.idErr = errors.Wrap(err, "failed to serialize creator")
			return
		}
		nonce, err := pt.suite.GenerateNonce(cryptosuite.DefaultNonceLength)
		if err != nil {
			pt.idErr = err
			return
		}

		saltedCreator := make([]byte, 0, len(nonce)+len(creator))
		saltedCreator = append(saltedCreator, nonce...)
		saltedCreator = append(saltedCreator, creator...)

		pt.creator = creator
		pt.nonce = nonce
		pt.transactionID = pt.suite.HexDigest(saltedCreator)
	})
	return pt.idErr
}

func (pt *ProposedTransaction) Nonce() ([]byte, error) {
	if err := pt.transactionContext(); err != nil {
		return nil, err
	}
	return pt.nonce, nil
}

func (pt *ProposedTransaction) TransactionID() (string, error) {
	if err := pt.transactionContext(); err != nil {
		return "", err
	}
	return pt.transactionID, nil
}

// Creator returns the serialized identity the proposal is created by.
func (pt *ProposedTransaction) Creator() ([]byte, error) {
	if err := pt.transactionContext(); err != nil {
		return nil, err
	}
	return pt.creator, nil
}

func (pt *ProposedTransaction) build() error {
	pt.buildOnce.Do(func() {
		pt.buildErr = pt.doBuild()
	})
	return pt.buildErr
}

func (pt *ProposedTransaction) doBuild() error {
	if err := pt.transactionContext(); err != nil {
		return err
	}

	header, err := pt.header()
	if err != nil {
		return err
	}
	payload, err := pt.chaincodeProposalPayload()
	if err != nil {
		return err
	}

	proposal := &peer.Proposal{Header: header, Payload: payload}
	proposalBytes, err := marshal(proposal, "Proposal")
	if err != nil {
		return err
	}

	pt.proposal = proposal
	pt.signed = &peer.SignedProposal{ProposalBytes: proposalBytes}
	pt.proposed = &pb.ProposedTransaction{
		TransactionId:          pt.transactionID,
		Proposal:               pt.signed,
		EndorsingOrganizations: pt.endorsingOrganizations,
	}
	return nil
}

func (pt *ProposedTransaction) header() ([]byte, error) {
	extension, err := marshal(&peer.ChaincodeHeaderExtension{
		ChaincodeId: &peer.ChaincodeID{Name: pt.chaincodeName},
	}, "ChaincodeHeaderExtension")
	if err != nil {
		return nil, err
	}

	channelHeader, err := marshal(&common.ChannelHeader{
		Type:      int32(common.HeaderType_ENDORSER_TRANSACTION),
		ChannelId: pt.channelID,
		TxId:      pt.transactionID,
		Timestamp: timestamppb.New(pt.now()),
		Epoch:     0,
		Extension: extension,
	}, "ChannelHeader")
	if err != nil {
		return nil, err
	}

	signatureHeader, err := marshal(&common.SignatureHeader{
		Creator: pt.creator,
		Nonce:   pt.nonce,
	}, "SignatureHeader")
	if err != nil {
		return nil, err
	}

	return marshal(&common.Header{
		ChannelHeader:   channelHeader,
		SignatureHeader: signatureHeader,
	}, "Header")
}

func (pt *ProposedTransaction) chaincodeProposalPayload() ([]byte, error) {
	args := make([][]byte, 0, len(pt.arguments)+1)
	args = append(args, []byte(pt.transactionName))
	args = append(args, pt.arguments...)

	input, err := marshal(&peer.ChaincodeInvocationSpec{
		ChaincodeSpec: &peer.ChaincodeSpec{
			Type:        peer.ChaincodeSpec_NODE,
			ChaincodeId: &peer.ChaincodeID{Name: pt.chaincodeName},
			Input:       &peer.ChaincodeInput{Args: args},
		},
	}, "ChaincodeInvocationSpec")
	if err != nil {
		return nil, err
	}

	return marshal(&peer.ChaincodeProposalPayload{
		Input:        input,
		TransientMap: pt.transient,
	}, "ChaincodeProposalPayload")
}

// AsProto returns the gateway message. Its SignedProposal is shared with the Proposal
// built over this instance, so a signature set there shows up here.
func (pt *ProposedTransaction) AsProto() (*pb.ProposedTransaction, error) {
	if err := pt.build(); err != nil {
		return nil, err
	}
	return pt.proposed, nil
}

func (pt *ProposedTransaction) Proposal() (*peer.Proposal, error) {
	if err := pt.build(); err != nil {
		return nil, err
	}
	return pt.proposal, nil
}

func (pt *ProposedTransaction) SignedProposal() (*peer.SignedProposal, error) {
	if err := pt.build(); err != nil {
		return nil, err
	}
	return pt.signed, nil
}

// Bytes serializes the gateway message, e.g. to hand it to an offline signer.
func (pt *ProposedTransaction) Bytes() ([]byte, error) {
	proposed, err := pt.AsProto()
	if err != nil {
		return nil, err
	}
	return marshal(proposed, "ProposedTransaction")
}

func (pt *ProposedTransaction) JSON() ([]byte, error) {
	proposed, err := pt.AsProto()
	if err != nil {
		return nil, err
	}
	raw, err := protojson.Marshal(proto.MessageV2(proposed))
	return raw, errors.Wrap(err, "error marshaling ProposedTransaction to JSON")
}
