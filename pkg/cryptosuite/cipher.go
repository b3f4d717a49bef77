package cryptosuite

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
)

const aes256KeyLength = 32

// Encrypt encrypts data with AES-256-CBC under the hex encoded secret. The random IV is
// prepended to the ciphertext and the result is base64 encoded.
func (s *Suite) Encrypt(secret string, data []byte) (string, error) {
	block, err := newAESCipher(secret)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", newCryptoError("encrypt", errors.Wrap(err, "error getting random bytes"))
	}

	plaintext := pkcs7Pad(data, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(plaintext))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], plaintext)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. An empty input decrypts to nil without error.
func (s *Suite) Decrypt(secret string, data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, newCryptoError("decrypt", err)
	}
	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return nil, newCryptoError("decrypt", errors.Errorf("invalid ciphertext length %d", len(raw)))
	}

	block, err := newAESCipher(secret)
	if err != nil {
		return nil, err
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, newCryptoError("decrypt", err)
	}
	return plaintext, nil
}

func newAESCipher(secret string) (cipher.Block, error) {
	key, err := decodeHex(secret)
	if err != nil {
		return nil, newCryptoError("decode secret", err)
	}
	if len(key) != aes256KeyLength {
		return nil, newCryptoError("decode secret", errors.Errorf("secret must be %d bytes, got %d", aes256KeyLength, len(key)))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, newCryptoError("decode secret", err)
	}
	return block, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded data length")
	}

	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
