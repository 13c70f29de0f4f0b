package assistant

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"chatdesk/internal/models"
)

// APIKeyEnv holds the 32-byte key (raw or base64) used to encrypt provider
// credentials at rest.
const APIKeyEnv = "CHATDESK_APIKEY_KEY"

const encryptedPrefix = "enc:v1:"

var errInvalidCiphertext = errors.New("invalid token ciphertext")

type tokenCipher struct {
	aead cipher.AEAD
}

// newTokenCipherFromEnv returns nil without error when no key is set; keys
// are then stored as plaintext.
func newTokenCipherFromEnv() (*tokenCipher, error) {
	raw := strings.TrimSpace(os.Getenv(APIKeyEnv))
	if raw == "" {
		return nil, nil
	}
	return newTokenCipher(raw)
}

func newTokenCipher(raw string) (*tokenCipher, error) {
	key, err := decodeKey(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", APIKeyEnv, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &tokenCipher{aead: aead}, nil
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length %d, want 32", len(key))
	}
	return key, nil
}

func (c *tokenCipher) Encrypt(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	cipherText := c.aead.Seal(nil, nonce, []byte(plain), nil)
	buf := append(nonce, cipherText...)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(buf), nil
}

func (c *tokenCipher) Decrypt(input string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(input, encryptedPrefix))
	if err != nil {
		return "", errInvalidCiphertext
	}
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return "", errInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", errInvalidCiphertext
	}
	return string(plain), nil
}

func keyFields(s *models.Settings) []*string {
	return []*string{&s.OpenRouterKey, &s.OpenAIKey, &s.GeminiKey, &s.DeepSeekKey, &s.QwenKey}
}

// sealSettings encrypts every non-empty credential. Without a cipher the
// settings are returned unchanged.
func (c *tokenCipher) sealSettings(s models.Settings) (models.Settings, error) {
	if c == nil {
		return s, nil
	}
	for _, field := range keyFields(&s) {
		if *field == "" || strings.HasPrefix(*field, "$") {
			continue
		}
		enc, err := c.Encrypt(*field)
		if err != nil {
			return s, err
		}
		*field = enc
	}
	return s, nil
}

// openSettings reverses sealSettings. Plaintext values written before a key
// was configured pass through.
func (c *tokenCipher) openSettings(s models.Settings) (models.Settings, error) {
	for _, field := range keyFields(&s) {
		if !strings.HasPrefix(*field, encryptedPrefix) {
			continue
		}
		if c == nil {
			return s, fmt.Errorf("stored api keys are encrypted but %s is not set", APIKeyEnv)
		}
		plain, err := c.Decrypt(*field)
		if err != nil {
			return s, err
		}
		*field = plain
	}
	return s, nil
}
