package infra

import (
	"github.com/osdi23p228/fabgw/pkg/gateway"
	"github.com/pkg/errors"
)

type Initiator struct {
	elements []*Element
	outCh    chan *Element
}

// NewInitiator builds one proposal per transaction. Proposal i is bound to the connection
// whose endorsing clients will later send it.
func NewInitiator(contracts []*gateway.Contract, outCh chan *Element) (*Initiator, error) {
	it := &Initiator{
		elements: make([]*Element, config.TxNum),
		outCh:    outCh,
	}

	// Create proposal and id for all generated transactions
	ccArgsList, err := generateCCArgsList()
	if err != nil {
		return nil, err
	}
	transient := config.TransientData()
	for i := 0; i < config.TxNum; i++ {
		ccArgs := ccArgsList[i]
		connIndex, _ := elementIndexes(i)

		proposal, err := contracts[connIndex].NewProposal(
			ccArgs[0],
			gateway.WithArguments(ccArgs[1:]...),
			gateway.WithTransient(transient),
			gateway.WithEndorsingOrganizations(config.EndorsingOrgs...),
		)
		if err != nil {
			return nil, errors.WithMessagef(err, "fail to create proposal %d", i)
		}

		txid2id[proposal.TransactionID()] = i
		it.elements[i] = &Element{Proposal: proposal, Txid: proposal.TransactionID()}
	}

	return it, nil
}

// StartSync sends all unsigned transactions (raw transactions) to the channel 'raw'
// waiting for subsequent processing
func (it *Initiator) StartSync() {
	for _, e := range it.elements {
		it.outCh <- e
	}

	it.End()
}

// End tells every signer there is nothing left to sign
func (it *Initiator) End() {
	for i := 0; i < config.SignerNum; i++ {
		it.outCh <- nil
	}
}
