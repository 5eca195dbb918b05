// cryptox реализует симметричное шифрование строк AES-256-CBC
// с PKCS#7-дополнением и hex-представлением шифртекста.
//
// Ключ (32 байта) и IV (16 байт) передаются строками и используются
// как сырые байты. Шифрование детерминировано: одинаковый текст при
// одинаковых ключе и IV даёт одинаковый шифртекст. MAC не добавляется,
// целостность ограничена проверкой дополнения и UTF-8.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// KeySize — длина ключа AES-256.
	KeySize = 32
	// IVSize — длина вектора инициализации (размер блока AES).
	IVSize = aes.BlockSize
)

// ErrCrypto — шифртекст повреждён или ключ/IV не подходят.
var ErrCrypto = errors.New("crypto error")

// Cipher — шифр с заранее проверенными ключом и IV.
// Безопасен для конкурентного использования.
type Cipher struct {
	block cipher.Block
	iv    []byte
}

// New проверяет ключ и IV и возвращает готовый шифр.
func New(key, iv string) (*Cipher, error) {
	const op = "cryptox.New"

	if len(key) != KeySize {
		return nil, fmt.Errorf("%s: key must be %d bytes, got %d: %w", op, KeySize, len(key), ErrCrypto)
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%s: iv must be %d bytes, got %d: %w", op, IVSize, len(iv), ErrCrypto)
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, ErrCrypto)
	}

	return &Cipher{block: block, iv: []byte(iv)}, nil
}

// Encrypt шифрует строку и возвращает шифртекст в hex.
func Encrypt(plaintext, key, iv string) (string, error) {
	c, err := New(key, iv)
	if err != nil {
		return "", err
	}

	return c.Encrypt(plaintext), nil
}

// Decrypt расшифровывает hex-шифртекст.
func Decrypt(ciphertextHex, key, iv string) (string, error) {
	c, err := New(key, iv)
	if err != nil {
		return "", err
	}

	return c.Decrypt(ciphertextHex)
}

// Encrypt шифрует строку и возвращает шифртекст в hex.
func (c *Cipher) Encrypt(plaintext string) string {
	data := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, data)

	return hex.EncodeToString(out)
}

// Decrypt расшифровывает hex-шифртекст.
// Любая ошибка формата, дополнения или кодировки — ErrCrypto.
func (c *Cipher) Decrypt(ciphertextHex string) (string, error) {
	const op = "cryptox.Decrypt"

	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("%s: malformed hex: %w", op, ErrCrypto)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%s: bad ciphertext length %d: %w", op, len(raw), ErrCrypto)
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)

	plain, ok := unpad(out, aes.BlockSize)
	if !ok {
		return "", fmt.Errorf("%s: bad padding: %w", op, ErrCrypto)
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%s: plaintext is not utf-8: %w", op, ErrCrypto)
	}

	return string(plain), nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}

	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, false
	}

	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, false
		}
	}

	return b[:len(b)-n], true
}
