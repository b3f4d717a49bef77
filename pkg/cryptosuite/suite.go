// Package cryptosuite implements the elliptic-curve primitives used to talk to a Fabric
// network: key generation and restoration, low-S ECDSA signatures, digests, nonces,
// ECDH shared secrets and AES-CBC encryption.
package cryptosuite

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"math/big"
	"strings"
	"sync"

	// register the digests selectable through Options
	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/pkg/errors"
)

const (
	DefaultKeySize         = 256
	DefaultDigestAlgorithm = "SHA256"
	DefaultNonceLength     = 24
)

var (
	defaultSuite     *Suite
	defaultSuiteOnce sync.Once
)

// Options selects the curve and digest of a Suite. Zero values fall back to the defaults.
type Options struct {
	KeySize         int    // 256 (P-256) or 384 (P-384)
	DigestAlgorithm string // SHA256, SHA384 or SHA512
}

// Suite is stateless apart from its curve and digest choice and is safe for concurrent use.
type Suite struct {
	keySize         int
	curve           elliptic.Curve
	ecdhCurve       ecdh.Curve
	halfOrder       *big.Int
	digestAlgorithm string
	hash            crypto.Hash
	sigAlgorithm    x509.SignatureAlgorithm
}

type ecdsaSignature struct {
	R, S *big.Int
}

// New returns a Suite configured by opts.
func New(opts Options) (*Suite, error) {
	s := &Suite{
		keySize:         opts.KeySize,
		digestAlgorithm: strings.ToUpper(opts.DigestAlgorithm),
	}
	if s.keySize == 0 {
		s.keySize = DefaultKeySize
	}
	if s.digestAlgorithm == "" {
		s.digestAlgorithm = DefaultDigestAlgorithm
	}

	switch s.keySize {
	case 256:
		s.curve, s.ecdhCurve = elliptic.P256(), ecdh.P256()
	case 384:
		s.curve, s.ecdhCurve = elliptic.P384(), ecdh.P384()
	default:
		return nil, errors.Errorf("unsupported key size %d", s.keySize)
	}

	switch s.digestAlgorithm {
	case "SHA256":
		s.hash, s.sigAlgorithm = crypto.SHA256, x509.ECDSAWithSHA256
	case "SHA384":
		s.hash, s.sigAlgorithm = crypto.SHA384, x509.ECDSAWithSHA384
	case "SHA512":
		s.hash, s.sigAlgorithm = crypto.SHA512, x509.ECDSAWithSHA512
	default:
		return nil, errors.Errorf("unsupported digest algorithm %s", opts.DigestAlgorithm)
	}

	s.halfOrder = new(big.Int).Rsh(s.curve.Params().N, 1)
	return s, nil
}

// Default returns the process-wide P-256/SHA-256 suite.
func Default() *Suite {
	defaultSuiteOnce.Do(func() {
		s, err := New(Options{})
		if err != nil {
			panic(err)
		}
		defaultSuite = s
	})
	return defaultSuite
}

func (s *Suite) KeySize() int            { return s.keySize }
func (s *Suite) DigestAlgorithm() string { return s.digestAlgorithm }

// GeneratePrivateKey returns a fresh private scalar as lowercase hex.
func (s *Suite) GeneratePrivateKey() (string, error) {
	key, err := s.ecdhCurve.GenerateKey(rand.Reader)
	if err != nil {
		return "", newCryptoError("generate private key", err)
	}
	return hex.EncodeToString(key.Bytes()), nil
}

// RestorePublicKey multiplies the curve generator by the private scalar and returns the
// uncompressed point as lowercase hex.
func (s *Suite) RestorePublicKey(privateKey string) (string, error) {
	key, err := s.ecdhPrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key.PublicKey().Bytes()), nil
}

// Sign returns a DER encoded ECDSA signature over Digest(message). The S value is always
// normalized to the lower half of the curve order.
func (s *Suite) Sign(privateKey string, message []byte) ([]byte, error) {
	key, err := s.PrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	r, sv, err := ecdsa.Sign(rand.Reader, key, s.Digest(message))
	if err != nil {
		return nil, newCryptoError("sign", err)
	}

	sig, err := asn1.Marshal(ecdsaSignature{R: r, S: s.toLowS(sv)})
	if err != nil {
		return nil, newCryptoError("sign", err)
	}
	return sig, nil
}

// Verify reports whether signature is a valid low-S signature of message by publicKey.
// Only undecodable keys or signatures produce an error.
func (s *Suite) Verify(publicKey string, message, signature []byte) (bool, error) {
	key, err := s.PublicKey(publicKey)
	if err != nil {
		return false, err
	}

	sig := &ecdsaSignature{}
	rest, err := asn1.Unmarshal(signature, sig)
	if err != nil {
		return false, newCryptoError("decode signature", err)
	}
	if len(rest) != 0 {
		return false, newCryptoError("decode signature", errors.New("trailing data after signature"))
	}
	if sig.R == nil || sig.S == nil || sig.R.Sign() <= 0 || sig.S.Sign() <= 0 {
		return false, newCryptoError("decode signature", errors.New("signature values must be positive"))
	}

	if !s.isLowS(sig.S) {
		return false, nil
	}

	return ecdsa.Verify(key, s.Digest(message), sig.R, sig.S), nil
}

// Digest hashes message with the configured algorithm.
func (s *Suite) Digest(message []byte) []byte {
	h := s.hash.New()
	h.Write(message)
	return h.Sum(nil)
}

func (s *Suite) HexDigest(message []byte) string {
	return hex.EncodeToString(s.Digest(message))
}

// GenerateNonce returns length cryptographically secure random bytes.
func (s *Suite) GenerateNonce(length int) ([]byte, error) {
	if length <= 0 {
		length = DefaultNonceLength
	}
	nonce := make([]byte, length)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "error getting random bytes")
	}
	return nonce, nil
}

// AddressFromPublicKey returns the hex of the last 20 bytes of the digest of the public
// point without its leading format byte.
func (s *Suite) AddressFromPublicKey(publicKey string) (string, error) {
	raw, err := decodeHex(publicKey)
	if err != nil {
		return "", newCryptoError("decode public key", err)
	}
	if len(raw) < 2 {
		return "", newCryptoError("decode public key", errors.New("public key too short"))
	}

	digest := s.Digest(raw[1:])
	if len(digest) < 20 {
		return "", newCryptoError("address", errors.New("digest shorter than an address"))
	}
	return hex.EncodeToString(digest[len(digest)-20:]), nil
}

// BuildSharedKey computes the ECDH shared secret between privateKey and the counterpart's
// publicKey and returns it as hex.
func (s *Suite) BuildSharedKey(privateKey, publicKey string) (string, error) {
	priv, err := s.ecdhPrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	pub, err := s.ecdhPublicKey(publicKey)
	if err != nil {
		return "", err
	}

	secret, err := priv.ECDH(pub)
	if err != nil {
		return "", newCryptoError("ecdh", err)
	}
	return hex.EncodeToString(secret), nil
}

func (s *Suite) isLowS(sv *big.Int) bool {
	return sv.Cmp(s.halfOrder) != 1
}

func (s *Suite) toLowS(sv *big.Int) *big.Int {
	if s.isLowS(sv) {
		return sv
	}
	// N - s lies in the lower half of the signature space
	return new(big.Int).Sub(s.curve.Params().N, sv)
}

func (s *Suite) byteLen() int {
	return (s.curve.Params().BitSize + 7) / 8
}

// decodeHex accepts odd length input since big number hex output drops leading zeros.
func decodeHex(str string) ([]byte, error) {
	if len(str)%2 == 1 {
		str = "0" + str
	}
	return hex.DecodeString(str)
}
