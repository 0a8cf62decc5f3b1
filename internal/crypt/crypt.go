// Package crypt seals chat message bodies under the shared symmetric key.
//
// Two formats are understood. The default one is XChaCha20-Poly1305 with a
// per-message HKDF salt and is tagged with a "v1:" prefix. The other is the
// OpenSSL "Salted__" passphrase format (AES-256-CBC, EVP_BytesToKey/MD5) that
// the browser client of the chat writes, so records it stored stay readable.
package crypt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// Sentinel replaces the body of any message that fails to decrypt.
	Sentinel = "Error decrypting message"

	// DefaultKey is used when no key is configured. Every deployment that
	// keeps it shares its key with every other one.
	DefaultKey = "KEEP_A_SECRET_PLEASE"

	SchemeXChaCha = "xchacha20poly1305"
	SchemeOpenSSL = "openssl-aes"
)

var (
	ErrUnknownScheme  = errors.New("unknown cipher scheme")
	ErrMalformed      = errors.New("malformed ciphertext")
	ErrAuthentication = errors.New("message authentication failed")
	ErrBadPadding     = errors.New("invalid padding")
	ErrInvalidUTF8    = errors.New("plaintext is not valid UTF-8")
)

// Schemes lists the accepted write schemes.
var Schemes = []string{SchemeXChaCha, SchemeOpenSSL}

// Encrypt seals plaintext under key with the default scheme.
func Encrypt(plaintext, key string) (string, error) {
	return seal(SchemeXChaCha, plaintext, key)
}

// Decrypt opens ciphertext under key. Failures are logged on the standard
// logrus logger and yield Sentinel; an empty ciphertext yields "".
func Decrypt(ciphertext, key string) string {
	return decrypt(ciphertext, key, logrus.StandardLogger())
}

// Open reports why ciphertext could not be opened instead of hiding it
// behind Sentinel.
func Open(ciphertext, key string) (string, error) {
	if strings.HasPrefix(ciphertext, v1Prefix) {
		return openV1(ciphertext, key)
	}
	return openOpenSSL(ciphertext, key)
}

// Cipher binds the shared key, the scheme used for new messages and the
// logger decryption failures are reported to.
type Cipher struct {
	key    string
	scheme string
	log    logrus.FieldLogger
}

func NewCipher(key, scheme string, log logrus.FieldLogger) (*Cipher, error) {
	if scheme == "" {
		scheme = SchemeXChaCha
	}
	if scheme != SchemeXChaCha && scheme != SchemeOpenSSL {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cipher{key: key, scheme: scheme, log: log}, nil
}

func (c *Cipher) Scheme() string { return c.scheme }

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	return seal(c.scheme, plaintext, c.key)
}

func (c *Cipher) Decrypt(ciphertext string) string {
	return decrypt(ciphertext, c.key, c.log)
}

func seal(scheme, plaintext, key string) (string, error) {
	switch scheme {
	case SchemeXChaCha:
		return sealV1(plaintext, key)
	case SchemeOpenSSL:
		return sealOpenSSL(plaintext, key)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}

func decrypt(ciphertext, key string, log logrus.FieldLogger) string {
	if ciphertext == "" {
		return ""
	}
	plaintext, err := Open(ciphertext, key)
	if err != nil {
		log.WithError(err).Warn("decryption error")
		return Sentinel
	}
	return plaintext
}
