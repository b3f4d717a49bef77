package gateway

import (
	"context"

	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/sirupsen/logrus"
)

type proposalOptions struct {
	arguments              [][]byte
	transient              map[string][]byte
	endorsingOrganizations []string
}

// ProposalOption adds input to a transaction proposal.
type ProposalOption func(*proposalOptions)

func WithArguments(args ...string) ProposalOption {
	return func(o *proposalOptions) {
		for _, arg := range args {
			o.arguments = append(o.arguments, []byte(arg))
		}
	}
}

func WithBytesArguments(args ...[]byte) ProposalOption {
	return func(o *proposalOptions) {
		o.arguments = append(o.arguments, args...)
	}
}

// WithTransient passes private data that is not recorded on the ledger.
func WithTransient(transient map[string][]byte) ProposalOption {
	return func(o *proposalOptions) {
		o.transient = transient
	}
}

// WithEndorsingOrganizations restricts evaluation and endorsement to the given MSP ids.
func WithEndorsingOrganizations(mspIDs ...string) ProposalOption {
	return func(o *proposalOptions) {
		o.endorsingOrganizations = mspIDs
	}
}

// Contract is a smart contract deployed in a chaincode on a channel.
type Contract struct {
	client        *Client
	identity      Identity
	signer        Signer
	suite         *cryptosuite.Suite
	logger        logrus.FieldLogger
	channelID     string
	chaincodeName string
	contractName  string
}

func (c *Contract) ChaincodeName() string { return c.chaincodeName }
func (c *Contract) ContractName() string  { return c.contractName }

// QualifiedName prefixes transactionName with the contract name, if one is set.
func (c *Contract) QualifiedName(transactionName string) string {
	if c.contractName == "" {
		return transactionName
	}
	return c.contractName + ":" + transactionName
}

// NewProposal creates an unsigned proposal for transactionName.
func (c *Contract) NewProposal(transactionName string, opts ...ProposalOption) (*Proposal, error) {
	pt, err := NewProposedTransaction(c.channelID, c.chaincodeName, c.QualifiedName(transactionName), c.identity, c.suite, opts...)
	if err != nil {
		return nil, err
	}
	return newProposal(c.client, c.signer, c.suite, c.logger, pt)
}

// Evaluate runs transactionName on one peer without updating the ledger.
func (c *Contract) Evaluate(ctx context.Context, transactionName string, opts ...ProposalOption) ([]byte, error) {
	proposal, err := c.NewProposal(transactionName, opts...)
	if err != nil {
		return nil, err
	}
	return proposal.Evaluate(ctx)
}

func (c *Contract) EvaluateTransaction(ctx context.Context, transactionName string, args ...string) ([]byte, error) {
	return c.Evaluate(ctx, transactionName, WithArguments(args...))
}

// Submit endorses and submits transactionName and waits for it to commit. It returns the
// chaincode result, or a *CommitError when the transaction is invalidated.
func (c *Contract) Submit(ctx context.Context, transactionName string, opts ...ProposalOption) ([]byte, error) {
	tx, err := c.SubmitAsync(ctx, transactionName, opts...)
	if err != nil {
		return nil, err
	}
	return tx.Result(ctx, true)
}

func (c *Contract) SubmitTransaction(ctx context.Context, transactionName string, args ...string) ([]byte, error) {
	return c.Submit(ctx, transactionName, WithArguments(args...))
}

// SubmitAsync endorses and submits transactionName without waiting for the commit. The
// returned Transaction reports the result and the commit status.
func (c *Contract) SubmitAsync(ctx context.Context, transactionName string, opts ...ProposalOption) (*Transaction, error) {
	proposal, err := c.NewProposal(transactionName, opts...)
	if err != nil {
		return nil, err
	}
	tx, err := proposal.Endorse(ctx)
	if err != nil {
		return nil, err
	}
	return tx.Submit(ctx)
}
