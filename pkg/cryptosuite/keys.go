package cryptosuite

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"math/big"

	"github.com/pkg/errors"
)

// PrivateKey converts a hex private scalar into an ecdsa key on the suite's curve.
func (s *Suite) PrivateKey(privateKey string) (*ecdsa.PrivateKey, error) {
	key, err := s.ecdhPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	point := key.PublicKey().Bytes()
	n := s.byteLen()
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: s.curve,
			X:     new(big.Int).SetBytes(point[1 : 1+n]),
			Y:     new(big.Int).SetBytes(point[1+n:]),
		},
		D: new(big.Int).SetBytes(key.Bytes()),
	}, nil
}

// PublicKey converts a hex uncompressed point into an ecdsa public key.
func (s *Suite) PublicKey(publicKey string) (*ecdsa.PublicKey, error) {
	key, err := s.ecdhPublicKey(publicKey)
	if err != nil {
		return nil, err
	}

	point := key.Bytes()
	n := s.byteLen()
	return &ecdsa.PublicKey{
		Curve: s.curve,
		X:     new(big.Int).SetBytes(point[1 : 1+n]),
		Y:     new(big.Int).SetBytes(point[1+n:]),
	}, nil
}

func (s *Suite) ecdhPrivateKey(privateKey string) (*ecdh.PrivateKey, error) {
	raw, err := decodeHex(privateKey)
	if err != nil {
		return nil, newCryptoError("decode private key", err)
	}

	n := s.byteLen()
	if len(raw) > n {
		return nil, newCryptoError("decode private key", errors.Errorf("private key longer than %d bytes", n))
	}
	padded := make([]byte, n)
	copy(padded[n-len(raw):], raw)

	key, err := s.ecdhCurve.NewPrivateKey(padded)
	if err != nil {
		return nil, newCryptoError("decode private key", err)
	}
	return key, nil
}

func (s *Suite) ecdhPublicKey(publicKey string) (*ecdh.PublicKey, error) {
	raw, err := decodeHex(publicKey)
	if err != nil {
		return nil, newCryptoError("decode public key", err)
	}

	key, err := s.ecdhCurve.NewPublicKey(raw)
	if err != nil {
		return nil, newCryptoError("decode public key", err)
	}
	return key, nil
}

// KeyFromPEM extracts the hex private scalar from a SEC1 or PKCS#8 EC private key.
func (s *Suite) KeyFromPEM(pemKey []byte) (string, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return "", newCryptoError("decode pem", errors.New("no PEM block found"))
	}

	key, err := parseECPrivateKey(block.Bytes)
	if err != nil {
		return "", newCryptoError("decode pem", err)
	}

	n := (key.Curve.Params().BitSize + 7) / 8
	return hex.EncodeToString(key.D.FillBytes(make([]byte, n))), nil
}

func parseECPrivateKey(der []byte) (*ecdsa.PrivateKey, error) {
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "key is neither SEC1 nor PKCS#8")
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("expected an EC private key, got %T", key)
	}
	return ecKey, nil
}

// PublicKeyPEMFromPrivateKey returns the PKIX PEM encoding of the public key that belongs
// to privateKey.
func (s *Suite) PublicKeyPEMFromPrivateKey(privateKey string) ([]byte, error) {
	key, err := s.PrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, newCryptoError("encode public key", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// PublicKeyFromCertificate returns the uncompressed public point hex of a PEM certificate.
func (s *Suite) PublicKeyFromCertificate(certificate []byte) (string, error) {
	block, _ := pem.Decode(certificate)
	if block == nil {
		return "", newCryptoError("decode certificate", errors.New("no PEM block found"))
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", newCryptoError("decode certificate", err)
	}

	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return "", newCryptoError("decode certificate", errors.Errorf("expected an EC public key, got %T", cert.PublicKey))
	}
	ecdhPub, err := pub.ECDH()
	if err != nil {
		return "", newCryptoError("decode certificate", err)
	}
	return hex.EncodeToString(ecdhPub.Bytes()), nil
}

// GenerateCSR builds a PEM encoded certificate signing request for privateKey.
func (s *Suite) GenerateCSR(privateKey string, subject pkix.Name) ([]byte, error) {
	key, err := s.PrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	template := &x509.CertificateRequest{
		Subject:            subject,
		SignatureAlgorithm: s.sigAlgorithm,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, newCryptoError("generate csr", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}
