package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

var saltedMagic = []byte("Salted__")

const (
	opensslSaltSize = 8
	opensslKeySize  = 32
)

// sealOpenSSL output: base64("Salted__" | salt | AES-256-CBC(PKCS#7)).
func sealOpenSSL(plaintext, key string) (string, error) {
	salt := make([]byte, opensslSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	k, iv := evpBytesToKey([]byte(key), salt, opensslKeySize, aes.BlockSize)
	block, err := aes.NewCipher(k)
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	body := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(body, padded)

	raw := make([]byte, 0, len(saltedMagic)+len(salt)+len(body))
	raw = append(raw, saltedMagic...)
	raw = append(raw, salt...)
	raw = append(raw, body...)
	return base64.StdEncoding.EncodeToString(raw), nil
}

func openOpenSSL(encoded, key string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	header := len(saltedMagic) + opensslSaltSize
	if len(raw) < header || !bytes.Equal(raw[:len(saltedMagic)], saltedMagic) {
		return "", fmt.Errorf("%w: missing salt header", ErrMalformed)
	}
	salt := raw[len(saltedMagic):header]
	body := raw[header:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: body is not a whole number of blocks", ErrMalformed)
	}

	k, iv := evpBytesToKey([]byte(key), salt, opensslKeySize, aes.BlockSize)
	block, err := aes.NewCipher(k)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)
	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", ErrInvalidUTF8
	}
	return string(plain), nil
}

// evpBytesToKey is OpenSSL's EVP_BytesToKey with MD5 and a single round.
func evpBytesToKey(pass, salt []byte, keyLen, ivLen int) ([]byte, []byte) {
	var derived, prev []byte
	for len(derived) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(pass)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+ivLen]
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}
