package gateway

import (
	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/common"
	"github.com/hyperledger/fabric-protos-go/peer"
	"github.com/pkg/errors"
)

func unmarshalPayload(raw []byte) (*common.Payload, error) {
	payload := &common.Payload{}
	err := proto.Unmarshal(raw, payload)
	return payload, errors.Wrap(err, "error unmarshaling Payload")
}

func unmarshalChannelHeader(raw []byte) (*common.ChannelHeader, error) {
	chdr := &common.ChannelHeader{}
	err := proto.Unmarshal(raw, chdr)
	return chdr, errors.Wrap(err, "error unmarshaling ChannelHeader")
}

func unmarshalTransaction(raw []byte) (*peer.Transaction, error) {
	tx := &peer.Transaction{}
	err := proto.Unmarshal(raw, tx)
	return tx, errors.Wrap(err, "error unmarshaling Transaction")
}

func unmarshalChaincodeActionPayload(raw []byte) (*peer.ChaincodeActionPayload, error) {
	cap := &peer.ChaincodeActionPayload{}
	err := proto.Unmarshal(raw, cap)
	return cap, errors.Wrap(err, "error unmarshaling ChaincodeActionPayload")
}

func unmarshalProposalResponsePayload(raw []byte) (*peer.ProposalResponsePayload, error) {
	prp := &peer.ProposalResponsePayload{}
	err := proto.Unmarshal(raw, prp)
	return prp, errors.Wrap(err, "error unmarshaling ProposalResponsePayload")
}

func unmarshalChaincodeAction(raw []byte) (*peer.ChaincodeAction, error) {
	action := &peer.ChaincodeAction{}
	err := proto.Unmarshal(raw, action)
	return action, errors.Wrap(err, "error unmarshaling ChaincodeAction")
}

func marshal(msg proto.Message, name string) ([]byte, error) {
	raw, err := proto.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "error marshaling %s", name)
	}
	return raw, nil
}
