package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite" // SQLite driver

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
	"github.com/Hussein-Mazeh/nivault/store"
)

// ErrInvalidSnapshot indicates bytes that do not load as a vault database image.
var ErrInvalidSnapshot = fmt.Errorf("invalid database snapshot: %w", nerrors.ErrInvalidCiphertext)

// DB wraps an in-memory SQLite handle holding the secrets table.
type DB struct {
	sql *sql.DB
}

// OpenMemory creates an empty in-memory database with the secrets schema.
// The pool is pinned to a single connection because every SQLite connection
// to ":memory:" is a distinct database.
func OpenMemory(ctx context.Context) (*DB, error) {
	handle, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	handle.SetMaxOpenConns(1)
	handle.SetMaxIdleConns(1)
	handle.SetConnMaxLifetime(0)
	handle.SetConnMaxIdleTime(0)

	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	d := &DB{sql: handle}
	if err := Migrate(ctx, d); err != nil {
		handle.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the database resources.
func Close(d *DB) error {
	if d == nil || d.sql == nil {
		return nil
	}
	err := d.sql.Close()
	d.sql = nil
	return err
}

const createSecretsTable = `
CREATE TABLE IF NOT EXISTS secrets (
	Id        INTEGER  PRIMARY KEY AUTOINCREMENT,
	Name      TEXT     NOT NULL UNIQUE,
	Iv        BLOB     NOT NULL,
	Value     BLOB     NOT NULL,
	CreatedAt DATETIME NOT NULL,
	UpdatedAt DATETIME NOT NULL
);`

// Migrate ensures the secrets table exists.
func Migrate(ctx context.Context, d *DB) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}
	if _, err := d.sql.ExecContext(ctx, createSecretsTable); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Snapshot serializes the whole database to a byte image. The image passes
// through a temporary file in tempDir that is removed on every exit path.
func Snapshot(ctx context.Context, d *DB, tempDir string) ([]byte, error) {
	if d == nil || d.sql == nil {
		return nil, fmt.Errorf("database handle is nil")
	}

	var image []byte
	err := store.WithTempFile(tempDir, ".db", func(path string) error {
		if _, err := d.sql.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
			return fmt.Errorf("vacuum into snapshot: %w", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		image = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return image, nil
}

// Load builds a fresh in-memory database from an image produced by Snapshot.
// Bytes that are not a SQLite image, fail the integrity check or lack the
// secrets table yield ErrInvalidSnapshot.
func Load(ctx context.Context, image []byte, tempDir string) (*DB, error) {
	d, err := OpenMemory(ctx)
	if err != nil {
		return nil, err
	}

	err = store.WithTempFile(tempDir, ".db", func(path string) error {
		if err := os.WriteFile(path, image, 0o600); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		return importSnapshot(ctx, d, path)
	})
	if err != nil {
		Close(d)
		return nil, err
	}
	return d, nil
}

func importSnapshot(ctx context.Context, d *DB, path string) error {
	if _, err := d.sql.ExecContext(ctx, `ATTACH DATABASE ? AS snap`, path); err != nil {
		return fmt.Errorf("attach snapshot: %v: %w", err, ErrInvalidSnapshot)
	}
	defer d.sql.ExecContext(context.WithoutCancel(ctx), `DETACH DATABASE snap`)

	var verdict string
	if err := d.sql.QueryRowContext(ctx, `PRAGMA snap.integrity_check(1)`).Scan(&verdict); err != nil {
		return fmt.Errorf("check snapshot: %v: %w", err, ErrInvalidSnapshot)
	}
	if verdict != "ok" {
		return fmt.Errorf("snapshot integrity: %s: %w", verdict, ErrInvalidSnapshot)
	}

	var tables int
	err := d.sql.QueryRowContext(ctx,
		`SELECT count(*) FROM snap.sqlite_master WHERE type = 'table' AND name = 'secrets'`,
	).Scan(&tables)
	if err != nil {
		return fmt.Errorf("inspect snapshot: %v: %w", err, ErrInvalidSnapshot)
	}
	if tables != 1 {
		return fmt.Errorf("snapshot has no secrets table: %w", ErrInvalidSnapshot)
	}

	if _, err := d.sql.ExecContext(ctx,
		`INSERT INTO main.secrets (Id, Name, Iv, Value, CreatedAt, UpdatedAt)
		 SELECT Id, Name, Iv, Value, CreatedAt, UpdatedAt FROM snap.secrets`,
	); err != nil {
		return fmt.Errorf("copy snapshot rows: %v: %w", err, ErrInvalidSnapshot)
	}

	// Carry the AUTOINCREMENT high-water mark so ids of deleted rows are not reused.
	var hasSeq int
	if err := d.sql.QueryRowContext(ctx,
		`SELECT count(*) FROM snap.sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'`,
	).Scan(&hasSeq); err != nil {
		return fmt.Errorf("inspect snapshot sequence: %v: %w", err, ErrInvalidSnapshot)
	}
	if hasSeq == 0 {
		return nil
	}
	if _, err := d.sql.ExecContext(ctx, `DELETE FROM main.sqlite_sequence WHERE name = 'secrets'`); err != nil {
		return fmt.Errorf("reset sequence: %w", err)
	}
	if _, err := d.sql.ExecContext(ctx,
		`INSERT INTO main.sqlite_sequence (name, seq)
		 SELECT name, seq FROM snap.sqlite_sequence WHERE name = 'secrets'`,
	); err != nil {
		return fmt.Errorf("copy sequence: %w", err)
	}
	return nil
}

// IsInvalidSnapshot reports whether err came from loading a bad image.
func IsInvalidSnapshot(err error) bool {
	return errors.Is(err, ErrInvalidSnapshot)
}
