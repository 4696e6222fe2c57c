package vault

import (
	"bytes"
	"fmt"
	"time"

	"github.com/Hussein-Mazeh/nivault/internal/db"
	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
	"github.com/Hussein-Mazeh/nivault/krypto"
)

const maxSecretName = 256

// Secret is a stored secret in encrypted form.
type Secret struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time

	iv    []byte
	value []byte
}

// IV returns a copy of the per-secret IV.
func (s Secret) IV() []byte { return bytes.Clone(s.iv) }

// Value returns a copy of the ciphertext.
func (s Secret) Value() []byte { return bytes.Clone(s.value) }

// SecretInfo describes a secret without its value.
type SecretInfo struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func secretFromRow(r *db.SecretRow) Secret {
	return Secret{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		iv:        r.IV,
		value:     r.Value,
	}
}

func validateSecretName(name string) error {
	if name == "" {
		return fmt.Errorf("secret name is required: %w", nerrors.ErrInvalidArgument)
	}
	if len(name) > maxSecretName {
		return fmt.Errorf("secret name longer than %d bytes: %w", maxSecretName, nerrors.ErrInvalidArgument)
	}
	return nil
}

// encryptSecret encrypts plaintext under the master key with a fresh random IV.
func encryptSecret(masterKey []byte, plaintext string) (iv, value []byte, err error) {
	iv, err = krypto.GenerateRandomIV()
	if err != nil {
		return nil, nil, err
	}

	pt := []byte(plaintext)
	defer krypto.Wipe(pt)

	value, err = krypto.Encrypt(pt, masterKey, iv)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt secret: %w", err)
	}
	return iv, value, nil
}

// decryptSecret recovers the plaintext of a stored secret. The scratch buffer
// is wiped once copied into the returned string.
func decryptSecret(masterKey, iv, value []byte) (string, error) {
	pt, err := krypto.Decrypt(value, masterKey, iv)
	if err != nil {
		return "", fmt.Errorf("decrypt secret: %w", err)
	}
	defer krypto.Wipe(pt)
	return string(pt), nil
}
