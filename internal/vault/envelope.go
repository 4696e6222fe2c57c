package vault

import (
	"fmt"
	"path/filepath"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
	"github.com/Hussein-Mazeh/nivault/krypto"
)

const (
	// FileKeySize is the number of trailing path bytes used as the outer key.
	FileKeySize = krypto.KeySize
	// FileIVSize is the length of the outer IV.
	FileIVSize = krypto.IVSize
)

// DeriveFileKey returns the last count UTF-8 bytes of absPath, left-padded
// with zero bytes when the path is shorter.
func DeriveFileKey(absPath string, count int) []byte {
	if count < 0 {
		count = 0
	}
	src := []byte(absPath)
	key := make([]byte, count)
	if len(src) >= count {
		copy(key, src[len(src)-count:])
	} else {
		copy(key[count-len(src):], src)
	}
	return key
}

// DeriveFileIV reads fileKey alternately from the front and the back
// (0, N-1, 1, N-2, ...) until size bytes are produced or the key runs out.
func DeriveFileIV(fileKey []byte, size int) []byte {
	iv := make([]byte, 0, max(size, 0))
	lo, hi := 0, len(fileKey)-1
	for len(iv) < size && lo <= hi {
		iv = append(iv, fileKey[lo])
		lo++
		if len(iv) < size && lo <= hi {
			iv = append(iv, fileKey[hi])
			hi--
		}
	}
	return iv
}

// WrapOuter encrypts a serialized parameter stream under a key derived from
// the file's absolute path. Moving the file breaks this layer.
func WrapOuter(serialized []byte, absPath string) ([]byte, error) {
	key, iv, err := fileKeyIV(absPath)
	if err != nil {
		return nil, err
	}
	defer krypto.Wipe(key)
	defer krypto.Wipe(iv)

	out, err := krypto.Encrypt(serialized, key, iv)
	if err != nil {
		return nil, fmt.Errorf("wrap vault file: %w", err)
	}
	return out, nil
}

// UnwrapOuter reverses WrapOuter. A wrong path surfaces as ErrInvalidCiphertext
// or as garbage that fails later parsing.
func UnwrapOuter(ciphertext []byte, absPath string) ([]byte, error) {
	key, iv, err := fileKeyIV(absPath)
	if err != nil {
		return nil, err
	}
	defer krypto.Wipe(key)
	defer krypto.Wipe(iv)

	out, err := krypto.Decrypt(ciphertext, key, iv)
	if err != nil {
		return nil, fmt.Errorf("unwrap vault file: %w", err)
	}
	return out, nil
}

func fileKeyIV(absPath string) (key, iv []byte, err error) {
	if !filepath.IsAbs(absPath) {
		return nil, nil, fmt.Errorf("vault path %q is not absolute: %w", absPath, nerrors.ErrInvalidArgument)
	}
	key = DeriveFileKey(absPath, FileKeySize)
	return key, DeriveFileIV(key, FileIVSize), nil
}
