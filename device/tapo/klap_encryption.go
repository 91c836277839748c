package tapo

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"github.com/mergermarket/go-pkcs7"
)

const klapSignatureLength = sha256.Size

type encryptionContext struct {
	block          cipher.Block
	iv             []byte
	signature      []byte
	sequenceNumber int32
}

func setupEncryption(localRemoteAuthBuffer []byte) (*encryptionContext, error) {
	keyHash := sha256.Sum256(append([]byte("lsk"), localRemoteAuthBuffer...))
	ivHash := sha256.Sum256(append([]byte("iv"), localRemoteAuthBuffer...))
	sequence := int32(binary.BigEndian.Uint32(ivHash[sha256.Size-4 : sha256.Size]))
	sigHash := sha256.Sum256(append([]byte("ldk"), localRemoteAuthBuffer...))
	aesCipher, err := aes.NewCipher(keyHash[:16])
	if err != nil {
		return nil, fmt.Errorf("could not construct AES cipher from session key: %w", err)
	}
	return &encryptionContext{
		block:          aesCipher,
		iv:             ivHash[:12],
		signature:      sigHash[:28],
		sequenceNumber: sequence,
	}, nil
}

func (ec *encryptionContext) getIv() []byte {
	return binary.BigEndian.AppendUint32(bytes.Clone(ec.iv), uint32(ec.sequenceNumber))
}

func (ec *encryptionContext) sign(cipherText []byte) []byte {
	hash := sha256.Sum256(
		append(binary.BigEndian.AppendUint32(bytes.Clone(ec.signature), uint32(ec.sequenceNumber)), cipherText...))
	return hash[:]
}

// encrypt advances the sequence number; the device answers under the same one.
func (ec *encryptionContext) encrypt(data []byte) []byte {
	ec.sequenceNumber++
	padded, _ := pkcs7.Pad(data, aes.BlockSize)
	cipherText := make([]byte, len(padded))
	cipher.NewCBCEncrypter(ec.block, ec.getIv()).CryptBlocks(cipherText, padded)
	return append(ec.sign(cipherText), cipherText...)
}

func (ec *encryptionContext) decrypt(data []byte) ([]byte, error) {
	if len(data) < klapSignatureLength+aes.BlockSize {
		return nil, fmt.Errorf("payload of %d bytes is too short: %w", len(data), ErrUnexpectedResponse)
	}
	cipherText := data[klapSignatureLength:]
	if len(cipherText)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not a whole number of blocks: %w", ErrUnexpectedResponse)
	}
	if !bytes.Equal(ec.sign(cipherText), data[:klapSignatureLength]) {
		return nil, fmt.Errorf("payload signature mismatch for sequence %d: %w", ec.sequenceNumber, ErrUnexpectedResponse)
	}
	plainText := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(ec.block, ec.getIv()).CryptBlocks(plainText, cipherText)
	return pkcs7.Unpad(plainText, aes.BlockSize)
}
