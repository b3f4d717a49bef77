// Package gateway is a client for the Hyperledger Fabric Gateway service. It builds and
// signs transaction proposals, endorses and submits them, extracts chaincode results from
// endorsed envelopes and queries commit status.
//
// Signing happens either through a Signer passed at construction, or offline: every
// signable object exposes a Digest and accepts a signature through SetSignature.
package gateway

import (
	"io"

	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/sirupsen/logrus"
)

// Identity is the creator of requests.
type Identity interface {
	Serialize() ([]byte, error)
}

// Signer is an Identity that can also sign messages.
type Signer interface {
	Identity
	Sign(message []byte) ([]byte, error)
}

type Gateway struct {
	client   *Client
	identity Identity
	signer   Signer
	suite    *cryptosuite.Suite
	logger   logrus.FieldLogger
}

type Option func(*Gateway)

func WithCryptoSuite(suite *cryptosuite.Suite) Option {
	return func(g *Gateway) {
		g.suite = suite
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithSigner signs with signer instead of the identity.
func WithSigner(signer Signer) Option {
	return func(g *Gateway) {
		g.signer = signer
	}
}

// New connects id to the gateway reachable through client. When id implements Signer it
// is used for signing unless WithSigner says otherwise.
func New(client *Client, id Identity, opts ...Option) (*Gateway, error) {
	if client == nil {
		return nil, newInvalidArgument("a client is required")
	}
	if id == nil {
		return nil, newInvalidArgument("an identity is required")
	}

	g := &Gateway{client: client, identity: id}
	if signer, ok := id.(Signer); ok {
		g.signer = signer
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.suite == nil {
		g.suite = cryptosuite.Default()
	}
	if g.logger == nil {
		g.logger = quietLogger()
	}
	return g, nil
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func (g *Gateway) Client() *Client           { return g.client }
func (g *Gateway) Identity() Identity        { return g.identity }
func (g *Gateway) Signer() Signer            { return g.signer }
func (g *Gateway) Suite() *cryptosuite.Suite { return g.suite }

// Network returns a handle on a channel.
func (g *Gateway) Network(name string) *Network {
	return &Network{
		client:   g.client,
		identity: g.identity,
		signer:   g.signer,
		suite:    g.suite,
		logger:   g.logger.WithField("channel", name),
		name:     name,
	}
}

// Network is a channel of the Fabric network.
type Network struct {
	client   *Client
	identity Identity
	signer   Signer
	suite    *cryptosuite.Suite
	logger   logrus.FieldLogger
	name     string
}

func (n *Network) Name() string { return n.name }

// Contract returns a handle on a chaincode. contractName may be empty when the chaincode
// exposes a single default contract.
func (n *Network) Contract(chaincodeName, contractName string) *Contract {
	return &Contract{
		client:        n.client,
		identity:      n.identity,
		signer:        n.signer,
		suite:         n.suite,
		logger:        n.logger.WithField("chaincode", chaincodeName),
		channelID:     n.name,
		chaincodeName: chaincodeName,
		contractName:  contractName,
	}
}
