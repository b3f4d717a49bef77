// Package identity holds the client key pair, certificate and MSP id used to sign
// gateway requests.
package identity

import (
	"crypto/x509/pkix"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/hyperledger/fabric-protos-go/msp"
	"github.com/osdi23p228/fabgw/pkg/cryptosuite"
	"github.com/pkg/errors"
)

// ErrKeyMismatch is returned when the private key, public key and certificate of an
// identity do not describe the same key pair.
var ErrKeyMismatch = errors.New("Key mismatch (public_key or certificate) for identity")

// Options configures New. A missing PrivateKey is generated and a missing PublicKey is
// restored from the private key.
type Options struct {
	PrivateKey  string // hex scalar
	PublicKey   string // hex uncompressed point
	Certificate []byte // PEM
	MspID       string
	Suite       *cryptosuite.Suite
}

// Identity is immutable after construction.
type Identity struct {
	privateKey  string
	publicKey   string
	certificate []byte
	mspID       string
	address     string
	suite       *cryptosuite.Suite
}

func New(opts Options) (*Identity, error) {
	suite := opts.Suite
	if suite == nil {
		suite = cryptosuite.Default()
	}

	privateKey := opts.PrivateKey
	if privateKey == "" {
		var err error
		if privateKey, err = suite.GeneratePrivateKey(); err != nil {
			return nil, err
		}
	}

	restored, err := suite.RestorePublicKey(privateKey)
	if err != nil {
		return nil, err
	}

	publicKey := strings.ToLower(opts.PublicKey)
	if publicKey == "" {
		publicKey = restored
	}
	if publicKey != restored {
		return nil, ErrKeyMismatch
	}

	if len(opts.Certificate) > 0 {
		fromCert, err := suite.PublicKeyFromCertificate(opts.Certificate)
		if err != nil {
			return nil, err
		}
		if strings.ToLower(fromCert) != publicKey {
			return nil, ErrKeyMismatch
		}
	}

	address, err := suite.AddressFromPublicKey(publicKey)
	if err != nil {
		return nil, err
	}

	return &Identity{
		privateKey:  privateKey,
		publicKey:   publicKey,
		certificate: opts.Certificate,
		mspID:       opts.MspID,
		address:     address,
		suite:       suite,
	}, nil
}

// FromPEM builds an identity from a PEM private key and PEM certificate.
func FromPEM(mspID string, keyPEM, certPEM []byte, suite *cryptosuite.Suite) (*Identity, error) {
	if suite == nil {
		suite = cryptosuite.Default()
	}

	privateKey, err := suite.KeyFromPEM(keyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "fail to load private key")
	}

	return New(Options{
		PrivateKey:  privateKey,
		Certificate: certPEM,
		MspID:       mspID,
		Suite:       suite,
	})
}

func (id *Identity) PrivateKey() string              { return id.privateKey }
func (id *Identity) PublicKey() string               { return id.publicKey }
func (id *Identity) Certificate() []byte             { return id.certificate }
func (id *Identity) MspID() string                   { return id.mspID }
func (id *Identity) Address() string                 { return id.address }
func (id *Identity) CryptoSuite() *cryptosuite.Suite { return id.suite }

// Sign signs message with the identity's private key.
func (id *Identity) Sign(message []byte) ([]byte, error) {
	return id.suite.Sign(id.privateKey, message)
}

func (id *Identity) Digest(message []byte) []byte {
	return id.suite.Digest(message)
}

func (id *Identity) SharedSecretBy(publicKey string) (string, error) {
	return id.suite.BuildSharedKey(id.privateKey, publicKey)
}

func (id *Identity) GenerateCSR(subject pkix.Name) ([]byte, error) {
	return id.suite.GenerateCSR(id.privateKey, subject)
}

func (id *Identity) AsProto() *msp.SerializedIdentity {
	return &msp.SerializedIdentity{
		Mspid:   id.mspID,
		IdBytes: id.certificate,
	}
}

// Serialize returns the SerializedIdentity bytes used as the creator of every request.
func (id *Identity) Serialize() ([]byte, error) {
	raw, err := proto.Marshal(id.AsProto())
	if err != nil {
		return nil, errors.Wrap(err, "error marshalling SerializedIdentity")
	}
	return raw, nil
}

// Serialized is an identity without key material, for callers that sign offline.
type Serialized struct {
	mspID       string
	certificate []byte
}

func NewSerialized(mspID string, certificate []byte) *Serialized {
	return &Serialized{mspID: mspID, certificate: certificate}
}

func (s *Serialized) MspID() string       { return s.mspID }
func (s *Serialized) Certificate() []byte { return s.certificate }

func (s *Serialized) Serialize() ([]byte, error) {
	raw, err := proto.Marshal(&msp.SerializedIdentity{Mspid: s.mspID, IdBytes: s.certificate})
	if err != nil {
		return nil, errors.Wrap(err, "error marshalling SerializedIdentity")
	}
	return raw, nil
}
