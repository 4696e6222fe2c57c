package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

// ErrDuplicateName is returned when a secret with the same name already exists.
var ErrDuplicateName = fmt.Errorf("duplicate secret name: %w", nerrors.ErrSecretExists)

// SecretRow represents an encrypted secret row retrieved from storage.
type SecretRow struct {
	ID        int64
	Name      string
	IV        []byte
	Value     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertSecret stores a new secret row and returns its database ID.
func InsertSecret(ctx context.Context, d *DB, name string, iv, value []byte, now time.Time) (int64, error) {
	if d == nil || d.sql == nil {
		return 0, fmt.Errorf("database handle is nil")
	}

	ts := formatTime(now)
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO secrets (Name, Iv, Value, CreatedAt, UpdatedAt) VALUES (?, ?, ?, ?, ?)`,
		name, iv, value, ts, ts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert secret %q: %w", name, ErrDuplicateName)
		}
		return 0, fmt.Errorf("insert secret: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("fetch insert id: %w", err)
	}
	return id, nil
}

// UpdateSecretValue replaces the IV and ciphertext of the named secret and
// bumps UpdatedAt. A missing row yields sql.ErrNoRows.
func UpdateSecretValue(ctx context.Context, d *DB, name string, iv, value []byte, now time.Time) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}

	res, err := d.sql.ExecContext(ctx,
		`UPDATE secrets SET Iv = ?, Value = ?, UpdatedAt = ? WHERE Name = ?`,
		iv, value, formatTime(now), name,
	)
	if err != nil {
		return fmt.Errorf("update secret: %w", err)
	}
	return expectOneRow(res, "update secret")
}

// DeleteSecretByName removes the named secret. A missing row yields sql.ErrNoRows.
func DeleteSecretByName(ctx context.Context, d *DB, name string) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil")
	}

	res, err := d.sql.ExecContext(ctx, `DELETE FROM secrets WHERE Name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return expectOneRow(res, "delete secret")
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetSecretByName fetches one row. A missing row yields sql.ErrNoRows.
func GetSecretByName(ctx context.Context, d *DB, name string) (*SecretRow, error) {
	if d == nil || d.sql == nil {
		return nil, fmt.Errorf("database handle is nil")
	}

	row := d.sql.QueryRowContext(ctx,
		`SELECT Id, Name, Iv, Value, CreatedAt, UpdatedAt FROM secrets WHERE Name = ?`,
		name,
	)
	r, err := scanSecret(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("select secret: %w", err)
	}
	return r, nil
}

// ListSecrets returns every row ordered by name.
func ListSecrets(ctx context.Context, d *DB) ([]SecretRow, error) {
	if d == nil || d.sql == nil {
		return nil, fmt.Errorf("database handle is nil")
	}

	rows, err := d.sql.QueryContext(ctx,
		`SELECT Id, Name, Iv, Value, CreatedAt, UpdatedAt FROM secrets ORDER BY Name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select secrets: %w", err)
	}
	defer rows.Close()

	var results []SecretRow
	for rows.Next() {
		r, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		results = append(results, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate secrets: %w", err)
	}
	return results, nil
}

// CountSecrets returns the number of stored secrets.
func CountSecrets(ctx context.Context, d *DB) (int, error) {
	if d == nil || d.sql == nil {
		return 0, fmt.Errorf("database handle is nil")
	}

	var n int
	if err := d.sql.QueryRowContext(ctx, `SELECT count(*) FROM secrets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count secrets: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSecret(s scanner) (*SecretRow, error) {
	var (
		r                SecretRow
		created, updated string
	)
	if err := s.Scan(&r.ID, &r.Name, &r.IV, &r.Value, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &r, nil
}
