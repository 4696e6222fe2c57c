package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

// Extension is the file suffix of vault files.
const Extension = ".nivr"

const (
	dirMode  = 0o700
	fileMode = 0o600
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Paths locates vault files on disk.
type Paths struct {
	Dir string
}

// ValidateName rejects names that could escape the vault directory.
func ValidateName(name string) error {
	if !validName.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("vault name %q: %w", name, nerrors.ErrInvalidArgument)
	}
	return nil
}

// VaultPath resolves the absolute path of the named vault.
func (p Paths) VaultPath(name string) (string, error) {
	if p.Dir == "" {
		return "", fmt.Errorf("vault directory not specified: %w", nerrors.ErrInvalidArgument)
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dir, err := filepath.Abs(p.Dir)
	if err != nil {
		return "", fmt.Errorf("resolve vault directory: %w", err)
	}
	return filepath.Join(dir, name+Extension), nil
}

// EnsureDir creates the vault directory with owner-only permissions.
func (p Paths) EnsureDir() error {
	if p.Dir == "" {
		return fmt.Errorf("vault directory not specified: %w", nerrors.ErrInvalidArgument)
	}
	if err := os.MkdirAll(p.Dir, dirMode); err != nil {
		return fmt.Errorf("create vault directory: %w", err)
	}
	return nil
}

// List returns the names of the vaults in the directory, sorted.
func (p Paths) List() ([]string, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read vault directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), Extension)
		if ValidateName(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether a regular file is present at path.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("%s is not a regular file: %w", path, nerrors.ErrInvalidArgument)
	}
	return true, nil
}

// ReadFile reads the whole vault file. A missing file yields ErrNotFound.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, nerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("read vault file: %w", err)
	}
	return data, nil
}

// WriteAtomic replaces path with data. The bytes go to a fresh temporary file
// in the same directory which is synced and renamed over path only once fully
// written; on any error or cancellation the temporary file is removed and path
// is left untouched. With exclusive set the final step refuses to replace an
// existing file and fails with ErrAlreadyExists.
func WriteAtomic(ctx context.Context, path string, data []byte, exclusive bool) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp vault file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp vault file: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		return fmt.Errorf("chmod temp vault file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp vault file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp vault file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if exclusive {
		// A hard link fails if path exists, giving create-only semantics.
		if err := os.Link(tmpPath, path); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("%s: %w", path, nerrors.ErrAlreadyExists)
			}
			return fmt.Errorf("link vault file: %w", err)
		}
		committed = true
		os.Remove(tmpPath)
		return nil
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace vault file: %w", err)
	}
	committed = true
	return nil
}

// Remove deletes the vault file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove vault file: %w", err)
	}
	return nil
}

// WithTempFile creates an empty owner-only file in dir, passes its path to fn
// and deletes it, together with any SQLite journal beside it, on every exit
// path. dir defaults to os.TempDir.
func WithTempFile(dir, suffix string, fn func(path string) error) error {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, ".snapshot-"+uuid.NewString()+suffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		os.Remove(path)
		os.Remove(path + "-journal")
	}()
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return fn(path)
}
