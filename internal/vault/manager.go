package vault

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/nivault/internal/db"
	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
	"github.com/Hussein-Mazeh/nivault/krypto"
	"github.com/Hussein-Mazeh/nivault/store"
)

// Manager creates and opens vault files inside one storage directory.
type Manager struct {
	paths store.Paths
	kdf   krypto.KDFParams
	log   *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithKDFParams overrides the Argon2id cost stamped on new vaults. Existing
// vaults always use the cost persisted in their file.
func WithKDFParams(p krypto.KDFParams) Option {
	return func(m *Manager) { m.kdf = p }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager returns a Manager rooted at dir.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("vault directory not specified: %w", nerrors.ErrInvalidArgument)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve vault directory: %w", err)
	}

	m := &Manager{
		paths: store.Paths{Dir: abs},
		kdf:   krypto.DefaultKDFParams(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.kdf.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Dir returns the absolute storage directory.
func (m *Manager) Dir() string { return m.paths.Dir }

// Path resolves the absolute file path of the named vault.
func (m *Manager) Path(name string) (string, error) {
	return m.paths.VaultPath(name)
}

// Exists reports whether the named vault file is present.
func (m *Manager) Exists(name string) (bool, error) {
	path, err := m.Path(name)
	if err != nil {
		return false, err
	}
	return store.Exists(path)
}

// List returns the names of all vaults in the directory.
func (m *Manager) List() ([]string, error) {
	return m.paths.List()
}

// CreateNew writes a new empty vault protected by password and returns it
// open. The returned handle comes from reading the file back, so it is
// exactly what a later OpenExisting would produce.
func (m *Manager) CreateNew(ctx context.Context, password []byte, name string) (*Vault, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("password is required: %w", nerrors.ErrInvalidArgument)
	}
	path, err := m.Path(name)
	if err != nil {
		return nil, err
	}
	exists, err := store.Exists(path)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", path, nerrors.ErrAlreadyExists)
	}
	if err := m.paths.EnsureDir(); err != nil {
		return nil, err
	}

	start := time.Now()
	salt, err := krypto.NewRandomSalt(krypto.SaltSize)
	if err != nil {
		return nil, err
	}
	params, err := DefaultParameters(salt, m.kdf)
	if err != nil {
		return nil, err
	}

	empty, err := db.OpenMemory(ctx)
	if err != nil {
		return nil, err
	}
	image, err := db.Snapshot(ctx, empty, m.paths.Dir)
	db.Close(empty)
	if err != nil {
		return nil, err
	}
	defer krypto.Wipe(image)

	key, err := deriveKey(ctx, password, params.salt, params.kdf)
	if err != nil {
		return nil, err
	}
	content, err := params.EncryptContent(key, image)
	krypto.Wipe(key)
	if err != nil {
		return nil, err
	}
	params = params.WithContent(content)

	data, err := encodeFile(params, path)
	if err != nil {
		return nil, err
	}
	if err := store.WriteAtomic(ctx, path, data, true); err != nil {
		return nil, err
	}
	m.log.Info("vault created",
		zap.String("vault", name),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)),
	)

	v, err := m.OpenExisting(ctx, password, name)
	if err != nil {
		m.log.Error("reopen after create failed, removing vault file", zap.String("vault", name), zap.Error(err))
		store.Remove(path)
		return nil, fmt.Errorf("%w: reopen created vault: %w", nerrors.ErrSaveFailed, err)
	}
	return v, nil
}

// OpenExisting reads, decrypts and loads the named vault. A wrong password, a
// moved file and a corrupted file all surface as ErrInvalidCiphertext.
func (m *Manager) OpenExisting(ctx context.Context, password []byte, name string) (*Vault, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("password is required: %w", nerrors.ErrInvalidArgument)
	}
	path, err := m.Path(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := store.ReadFile(path)
	if err != nil {
		return nil, err
	}
	params, err := decodeFile(data, path)
	if err != nil {
		return nil, err
	}

	key, err := deriveKey(ctx, password, params.salt, params.kdf)
	if err != nil {
		return nil, err
	}
	handle, err := loadContent(ctx, params, key, m.paths.Dir)
	if err != nil {
		krypto.Wipe(key)
		return nil, err
	}
	secret, err := krypto.NewSecretKey(key)
	if err != nil {
		db.Close(handle)
		return nil, err
	}

	m.log.Debug("vault opened",
		zap.String("vault", name),
		zap.Stringer("version", params.version),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &Vault{
		path:    path,
		name:    name,
		params:  params,
		key:     secret,
		db:      handle,
		tempDir: m.paths.Dir,
		log:     m.log.With(zap.String("vault", name)),
	}, nil
}

// Delete opens the vault with password to prove ownership, then removes the file.
func (m *Manager) Delete(ctx context.Context, password []byte, name string) error {
	v, err := m.OpenExisting(ctx, password, name)
	if err != nil {
		return err
	}
	path := v.Path()
	if err := v.Close(); err != nil {
		return err
	}
	if err := store.Remove(path); err != nil {
		return err
	}
	m.log.Info("vault deleted", zap.String("vault", name))
	return nil
}

// encodeFile serializes params and applies the path-bound outer layer.
func encodeFile(params *Parameters, path string) ([]byte, error) {
	serialized, err := params.MarshalTLV()
	if err != nil {
		return nil, err
	}
	return WrapOuter(serialized, path)
}

// decodeFile reverses encodeFile.
func decodeFile(data []byte, path string) (*Parameters, error) {
	serialized, err := UnwrapOuter(data, path)
	if err != nil {
		return nil, err
	}
	params, err := ParseTLV(bytes.NewReader(serialized))
	if err != nil {
		return nil, err
	}
	return params, nil
}

// loadContent decrypts the snapshot in params and loads it into a fresh
// in-memory database. A snapshot that does not load is reported as
// ErrInvalidCiphertext since a wrong key can yield valid padding.
func loadContent(ctx context.Context, params *Parameters, key []byte, tempDir string) (*db.DB, error) {
	var plain bytes.Buffer
	plain.Grow(params.ContentLen())
	defer func() {
		b := plain.Bytes()
		krypto.Wipe(b[:cap(b)])
	}()

	if err := params.DecryptContentStream(ctx, key, &plain); err != nil {
		return nil, err
	}
	handle, err := db.Load(ctx, plain.Bytes(), tempDir)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// deriveKey runs the KDF on its own goroutine so ctx can abandon the wait.
// An abandoned result is wiped when it eventually arrives.
func deriveKey(ctx context.Context, password, salt []byte, p krypto.KDFParams) ([]byte, error) {
	type result struct {
		key []byte
		err error
	}
	pw := bytes.Clone(password)
	s := bytes.Clone(salt)
	done := make(chan result, 1)

	go func() {
		defer krypto.Wipe(pw)
		key, err := krypto.DeriveKey(pw, s, p)
		done <- result{key: key, err: err}
	}()

	select {
	case res := <-done:
		return res.key, res.err
	case <-ctx.Done():
		go func() {
			res := <-done
			krypto.Wipe(res.key)
		}()
		return nil, ctx.Err()
	}
}
