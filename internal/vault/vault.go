package vault

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/nivault/internal/db"
	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
	"github.com/Hussein-Mazeh/nivault/krypto"
	"github.com/Hussein-Mazeh/nivault/store"
)

// Vault is an open vault. It is meant for use by one task at a time; the
// internal mutex only keeps accidental concurrent calls from interleaving.
// Once closed, by Close or by a failed save, every operation returns
// ErrVaultClosed.
type Vault struct {
	mu sync.Mutex

	path    string
	name    string
	params  *Parameters
	key     *krypto.SecretKey
	db      *db.DB
	tempDir string
	log     *zap.Logger
	closed  bool

	// afterWrite runs between the atomic write and the read-back. Tests only.
	afterWrite func(path string)
	// maxContent lowers MaxContentLength when non-zero. Tests only.
	maxContent int
}

// Info summarizes an open vault.
type Info struct {
	Name        string
	Path        string
	Version     Version
	KDF         krypto.KDFParams
	SecretCount int
	FileSize    int64
}

// Path returns the absolute file path the vault is bound to.
func (v *Vault) Path() string { return v.path }

// Name returns the vault name.
func (v *Vault) Name() string { return v.name }

// Version returns the format version read from disk.
func (v *Vault) Version() Version {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.params.version
}

// Parameters returns the parameters matching the file currently on disk.
func (v *Vault) Parameters() *Parameters {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.params
}

// IsClosed reports whether the vault has been closed.
func (v *Vault) IsClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Close releases the database and destroys the master key. It is idempotent.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closeLocked()
}

func (v *Vault) closeLocked() error {
	if v.closed {
		return nil
	}
	v.closed = true
	v.key.Destroy()
	err := db.Close(v.db)
	v.db = nil
	v.log.Debug("vault closed")
	if err != nil {
		return fmt.Errorf("close vault database: %w", err)
	}
	return nil
}

func (v *Vault) checkOpen() error {
	if v.closed {
		return fmt.Errorf("%s: %w", v.name, nerrors.ErrVaultClosed)
	}
	return nil
}

// VerifyPassword reports whether candidate derives the vault's master key.
func (v *Vault) VerifyPassword(ctx context.Context, candidate []byte) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return false, err
	}
	if len(candidate) == 0 {
		return false, nil
	}

	derived, err := deriveKey(ctx, candidate, v.params.salt, v.params.kdf)
	if err != nil {
		return false, err
	}
	defer krypto.Wipe(derived)
	return v.key.Equal(derived)
}

// AddSecret encrypts plaintext under name and saves the vault.
func (v *Vault) AddSecret(ctx context.Context, name, plaintext string) (Secret, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return Secret{}, err
	}
	if err := validateSecretName(name); err != nil {
		return Secret{}, err
	}

	var iv, value []byte
	err := v.key.Open(func(key []byte) error {
		var err error
		iv, value, err = encryptSecret(key, plaintext)
		return err
	})
	if err != nil {
		return Secret{}, err
	}

	now := time.Now().UTC()
	id, err := db.InsertSecret(ctx, v.db, name, iv, value, now)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateName) {
			return Secret{}, fmt.Errorf("secret %q: %w", name, nerrors.ErrSecretExists)
		}
		return Secret{}, err
	}
	if err := v.saveLocked(ctx); err != nil {
		return Secret{}, err
	}
	v.log.Debug("secret added", zap.String("secret", name))

	return Secret{ID: id, Name: name, CreatedAt: now, UpdatedAt: now, iv: iv, value: value}, nil
}

// UpdateSecret replaces the value of name under a fresh IV and saves the vault.
func (v *Vault) UpdateSecret(ctx context.Context, name, plaintext string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return err
	}
	if err := validateSecretName(name); err != nil {
		return err
	}

	var iv, value []byte
	err := v.key.Open(func(key []byte) error {
		var err error
		iv, value, err = encryptSecret(key, plaintext)
		return err
	})
	if err != nil {
		return err
	}

	if err := db.UpdateSecretValue(ctx, v.db, name, iv, value, time.Now().UTC()); err != nil {
		return secretLookupError(name, err)
	}
	if err := v.saveLocked(ctx); err != nil {
		return err
	}
	v.log.Debug("secret updated", zap.String("secret", name))
	return nil
}

// DeleteSecret removes name and saves the vault.
func (v *Vault) DeleteSecret(ctx context.Context, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return err
	}

	if err := db.DeleteSecretByName(ctx, v.db, name); err != nil {
		return secretLookupError(name, err)
	}
	if err := v.saveLocked(ctx); err != nil {
		return err
	}
	v.log.Debug("secret deleted", zap.String("secret", name))
	return nil
}

// GetSecretRecord returns the encrypted record of name.
func (v *Vault) GetSecretRecord(ctx context.Context, name string) (Secret, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return Secret{}, err
	}
	return v.recordLocked(ctx, name)
}

func (v *Vault) recordLocked(ctx context.Context, name string) (Secret, error) {
	row, err := db.GetSecretByName(ctx, v.db, name)
	if err != nil {
		return Secret{}, secretLookupError(name, err)
	}
	return secretFromRow(row), nil
}

// GetSecret returns the decrypted value of name.
func (v *Vault) GetSecret(ctx context.Context, name string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return "", err
	}

	s, err := v.recordLocked(ctx, name)
	if err != nil {
		return "", err
	}
	var plaintext string
	err = v.key.Open(func(key []byte) error {
		var err error
		plaintext, err = decryptSecret(key, s.iv, s.value)
		return err
	})
	return plaintext, err
}

// ListSecrets returns names and timestamps of every secret, ordered by name.
func (v *Vault) ListSecrets(ctx context.Context) ([]SecretInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := db.ListSecrets(ctx, v.db)
	if err != nil {
		return nil, err
	}
	infos := make([]SecretInfo, 0, len(rows))
	for _, r := range rows {
		infos = append(infos, SecretInfo{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt})
	}
	return infos, nil
}

// GetAllSecrets decrypts every secret into a name to plaintext map.
func (v *Vault) GetAllSecrets(ctx context.Context) (map[string]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := db.ListSecrets(ctx, v.db)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	err = v.key.Open(func(key []byte) error {
		for _, r := range rows {
			pt, err := decryptSecret(key, r.IV, r.Value)
			if err != nil {
				return fmt.Errorf("secret %q: %w", r.Name, err)
			}
			out[r.Name] = pt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Info reports format and size details of the open vault.
func (v *Vault) Info(ctx context.Context) (Info, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return Info{}, err
	}

	count, err := db.CountSecrets(ctx, v.db)
	if err != nil {
		return Info{}, err
	}
	st, err := os.Stat(v.path)
	if err != nil {
		return Info{}, fmt.Errorf("stat vault file: %w", err)
	}
	return Info{
		Name:        v.name,
		Path:        v.path,
		Version:     v.params.version,
		KDF:         v.params.kdf,
		SecretCount: count,
		FileSize:    st.Size(),
	}, nil
}

// SaveChanges writes the in-memory database to disk and reloads it from the
// written file. Any failure closes the vault; a failure after the file was
// replaced also deletes the file. Errors wrap ErrSaveFailed.
func (v *Vault) SaveChanges(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkOpen(); err != nil {
		return err
	}
	return v.saveLocked(ctx)
}

func (v *Vault) saveLocked(ctx context.Context) error {
	start := time.Now()

	data, next, err := v.encodeLocked(ctx)
	if err != nil {
		v.log.Error("save failed before write", zap.Error(err))
		v.closeLocked()
		return fmt.Errorf("%w: %w", nerrors.ErrSaveFailed, err)
	}
	if err := store.WriteAtomic(ctx, v.path, data, false); err != nil {
		v.log.Error("save failed during write", zap.Error(err))
		v.closeLocked()
		return fmt.Errorf("%w: %w", nerrors.ErrSaveFailed, err)
	}

	if v.afterWrite != nil {
		v.afterWrite(v.path)
	}

	params, handle, err := v.readBackLocked(ctx)
	if err == nil && !params.Equal(next) {
		db.Close(handle)
		err = fmt.Errorf("written parameters differ from the saved ones: %w", nerrors.ErrInvalidFormat)
	}
	if err != nil {
		v.log.Error("save verification failed, removing vault file", zap.Error(err))
		if rmErr := store.Remove(v.path); rmErr != nil {
			v.log.Error("remove unverified vault file", zap.Error(rmErr))
		}
		v.closeLocked()
		return fmt.Errorf("%w: verify written vault: %w", nerrors.ErrSaveFailed, err)
	}

	old := v.db
	v.db = handle
	v.params = params
	db.Close(old)

	v.log.Debug("vault saved",
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// encodeLocked snapshots the database and produces the complete file bytes
// together with the parameters they encode.
func (v *Vault) encodeLocked(ctx context.Context) ([]byte, *Parameters, error) {
	image, err := db.Snapshot(ctx, v.db, v.tempDir)
	if err != nil {
		return nil, nil, err
	}
	defer krypto.Wipe(image)

	limit := MaxContentLength
	if v.maxContent > 0 {
		limit = v.maxContent
	}
	if krypto.PaddedLen(len(image)) > limit {
		return nil, nil, fmt.Errorf("database of %d bytes exceeds the %d byte content limit: %w", len(image), limit, nerrors.ErrInvalidLength)
	}

	var content []byte
	err = v.key.Open(func(key []byte) error {
		var err error
		content, err = v.params.EncryptContentStream(ctx, key, bytes.NewReader(image))
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	next := v.params.WithContent(content)
	data, err := encodeFile(next, v.path)
	if err != nil {
		return nil, nil, err
	}
	return data, next, nil
}

// readBackLocked re-reads the vault file end to end with the live master key.
func (v *Vault) readBackLocked(ctx context.Context) (*Parameters, *db.DB, error) {
	data, err := store.ReadFile(v.path)
	if err != nil {
		return nil, nil, err
	}
	params, err := decodeFile(data, v.path)
	if err != nil {
		return nil, nil, err
	}

	var handle *db.DB
	err = v.key.Open(func(key []byte) error {
		var err error
		handle, err = loadContent(ctx, params, key, v.tempDir)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return params, handle, nil
}

func secretLookupError(name string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("secret %q: %w", name, nerrors.ErrSecretNotFound)
	}
	return err
}
