package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// CardNumberLength is the length of a formatted card number: BBBB-DDDD-DDDD-DDDD.
const CardNumberLength = 19

var groupsPattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{4}$`)

// ValidCardNumber reports whether number is formatted as BIN-XXXX-XXXX-XXXX
// with the given 4-digit issuer BIN.
func ValidCardNumber(number, bin string) bool {
	if len(number) != CardNumberLength || !groupsPattern.MatchString(number) {
		return false
	}
	return strings.HasPrefix(number, bin+"-")
}

// CardCipher encrypts card numbers at rest and derives a deterministic
// digest used for uniqueness lookups.
type CardCipher struct {
	key        []byte
	hmacSecret []byte
}

// NewCardCipher validates the AES key length and builds a cipher.
func NewCardCipher(key []byte, hmacSecret string) (*CardCipher, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes, got %d", len(key))
	}
	if hmacSecret == "" {
		return nil, fmt.Errorf("hmac secret is empty")
	}
	return &CardCipher{key: key, hmacSecret: []byte(hmacSecret)}, nil
}

// Seal encrypts a card number.
func (c *CardCipher) Seal(number string) (string, error) {
	return Encrypt(number, c.key)
}

// Open decrypts a card number produced by Seal.
func (c *CardCipher) Open(sealed string) (string, error) {
	return Decrypt(sealed, c.key)
}

// Digest returns the HMAC-SHA256 of a card number, hex encoded.
func (c *CardCipher) Digest(number string) string {
	h := hmac.New(sha256.New, c.hmacSecret)
	h.Write([]byte(number))
	return hex.EncodeToString(h.Sum(nil))
}

// Encrypt encrypts a string using AES-CBC with PKCS#7 padding; the random IV is prepended
func Encrypt(data string, key []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("input data is empty")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	padding := aes.BlockSize - len(data)%aes.BlockSize
	plaintext := make([]byte, len(data), len(data)+padding)
	copy(plaintext, data)
	for i := 0; i < padding; i++ {
		plaintext = append(plaintext, byte(padding))
	}

	out := make([]byte, aes.BlockSize+len(plaintext))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], plaintext)
	return hex.EncodeToString(out), nil
}

// Decrypt decrypts a hex-encoded string produced by Encrypt
func Decrypt(encryptedData string, key []byte) (string, error) {
	if len(encryptedData) == 0 {
		return "", fmt.Errorf("encrypted data is empty")
	}
	data, err := hex.DecodeString(encryptedData)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}
	if len(data) < 2*aes.BlockSize {
		return "", fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}

	iv, ciphertext := data[:aes.BlockSize], data[aes.BlockSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("invalid ciphertext length: %d bytes", len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	padding := int(plaintext[len(plaintext)-1])
	if padding > aes.BlockSize || padding == 0 {
		return "", fmt.Errorf("invalid padding value: %d", padding)
	}
	for _, b := range plaintext[len(plaintext)-padding:] {
		if int(b) != padding {
			return "", fmt.Errorf("invalid padding bytes")
		}
	}
	return string(plaintext[:len(plaintext)-padding]), nil
}
