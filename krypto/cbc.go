package krypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the CBC initialisation vector length in bytes.
	IVSize = aes.BlockSize
	// DefaultStreamBufferSize is the chunk size used by the stream variants.
	DefaultStreamBufferSize = 4096
)

// PaddedLen returns the ciphertext length Encrypt produces for n plaintext bytes.
func PaddedLen(n int) int {
	return (n/aes.BlockSize + 1) * aes.BlockSize
}

// Encrypt encrypts plaintext with AES-256-CBC and PKCS7 padding.
func Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	mode, err := newCBC(key, iv, true)
	if err != nil {
		return nil, err
	}
	out := pkcs7Pad(plaintext)
	mode.CryptBlocks(out, out)
	return out, nil
}

// Decrypt reverses Encrypt. A ciphertext that is empty, not block aligned or
// carries invalid padding fails with ErrInvalidCiphertext; this is the only
// integrity signal the format has.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	mode, err := newCBC(key, iv, false)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d: %w", len(ciphertext), nerrors.ErrInvalidCiphertext)
	}

	out := make([]byte, len(ciphertext))
	mode.CryptBlocks(out, ciphertext)
	n, err := pkcs7Unpad(out)
	if err != nil {
		Wipe(out)
		return nil, err
	}
	return out[:n], nil
}

// EncryptStream reads plaintext from r and writes AES-256-CBC ciphertext to w
// without holding the whole payload. bufferSize <= 0 selects
// DefaultStreamBufferSize. The padded final block is written exactly once,
// after r reports io.EOF.
func EncryptStream(ctx context.Context, r io.Reader, w io.Writer, key, iv []byte, bufferSize int) error {
	mode, err := newCBC(key, iv, true)
	if err != nil {
		return err
	}

	buf := make([]byte, streamBufferSize(bufferSize))
	defer Wipe(buf)

	fill := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := r.Read(buf[fill:])
		fill += n
		if fill == len(buf) {
			mode.CryptBlocks(buf, buf)
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("write ciphertext: %w", err)
			}
			fill = 0
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read plaintext: %w", rerr)
		}
	}

	final := pkcs7Pad(buf[:fill])
	defer Wipe(final)
	mode.CryptBlocks(final, final)
	if _, err := w.Write(final); err != nil {
		return fmt.Errorf("write final block: %w", err)
	}
	return nil
}

// DecryptStream reverses EncryptStream. The last ciphertext block is held
// back until io.EOF so padding can be checked and stripped. Plaintext written
// before a padding failure must be discarded by the caller.
func DecryptStream(ctx context.Context, r io.Reader, w io.Writer, key, iv []byte, bufferSize int) error {
	mode, err := newCBC(key, iv, false)
	if err != nil {
		return err
	}

	buf := make([]byte, streamBufferSize(bufferSize))
	defer Wipe(buf)

	fill := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := r.Read(buf[fill:])
		fill += n
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read ciphertext: %w", rerr)
		}
		if fill == len(buf) {
			flush := fill - aes.BlockSize
			mode.CryptBlocks(buf[:flush], buf[:flush])
			if _, err := w.Write(buf[:flush]); err != nil {
				return fmt.Errorf("write plaintext: %w", err)
			}
			copy(buf, buf[flush:fill])
			fill = aes.BlockSize
		}
	}

	if fill == 0 || fill%aes.BlockSize != 0 {
		return fmt.Errorf("trailing ciphertext of %d bytes: %w", fill, nerrors.ErrInvalidCiphertext)
	}
	mode.CryptBlocks(buf[:fill], buf[:fill])
	n, err := pkcs7Unpad(buf[:fill])
	if err != nil {
		return err
	}
	if _, err := w.Write(buf[:n]); err != nil {
		return fmt.Errorf("write plaintext: %w", err)
	}
	return nil
}

// GenerateRandomIV returns IVSize cryptographically random bytes.
func GenerateRandomIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return iv, nil
}

func newCBC(key, iv []byte, encrypt bool) (cipher.BlockMode, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aes-256-cbc requires a %d-byte key, got %d: %w", KeySize, len(key), nerrors.ErrInvalidKeyLength)
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("aes-256-cbc requires a %d-byte iv, got %d: %w", IVSize, len(iv), nerrors.ErrInvalidIVLength)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	if encrypt {
		return cipher.NewCBCEncrypter(block, iv), nil
	}
	return cipher.NewCBCDecrypter(block, iv), nil
}

// streamBufferSize rounds size up to a whole number of blocks, never below two.
func streamBufferSize(size int) int {
	if size <= 0 {
		size = DefaultStreamBufferSize
	}
	if size < 2*aes.BlockSize {
		size = 2 * aes.BlockSize
	}
	if rem := size % aes.BlockSize; rem != 0 {
		size += aes.BlockSize - rem
	}
	return size
}

func pkcs7Pad(b []byte) []byte {
	pad := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+pad)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

// pkcs7Unpad returns the unpadded length of b. Every padding byte is
// inspected so the check does not exit early on the first mismatch.
func pkcs7Unpad(b []byte) (int, error) {
	n := len(b)
	if n == 0 || n%aes.BlockSize != 0 {
		return 0, fmt.Errorf("padded length %d: %w", n, nerrors.ErrInvalidCiphertext)
	}
	pad := int(b[n-1])
	if pad == 0 || pad > aes.BlockSize {
		return 0, fmt.Errorf("bad padding: %w", nerrors.ErrInvalidCiphertext)
	}
	var diff byte
	for _, c := range b[n-pad:] {
		diff |= c ^ byte(pad)
	}
	if diff != 0 {
		return 0, fmt.Errorf("bad padding: %w", nerrors.ErrInvalidCiphertext)
	}
	return n - pad, nil
}
