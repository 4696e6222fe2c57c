package db

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory returned error: %v", err)
	}
	t.Cleanup(func() { Close(d) })
	return d
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected %s to be empty, found %d entries", dir, len(entries))
	}
}

func TestSecretCRUD(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := InsertSecret(ctx, d, "api-key", []byte("iv-iv-iv-iv-iv-i"), []byte("ciphertext"), now)
	if err != nil {
		t.Fatalf("InsertSecret returned error: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first id 1, got %d", id)
	}

	if _, err := InsertSecret(ctx, d, "api-key", []byte("x"), []byte("y"), now); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if _, err := InsertSecret(ctx, d, "api-key", []byte("x"), []byte("y"), now); !errors.Is(err, nerrors.ErrSecretExists) {
		t.Fatalf("expected ErrSecretExists, got %v", err)
	}

	row, err := GetSecretByName(ctx, d, "api-key")
	if err != nil {
		t.Fatalf("GetSecretByName returned error: %v", err)
	}
	if row.Name != "api-key" || !bytes.Equal(row.Value, []byte("ciphertext")) {
		t.Fatalf("unexpected row: %+v", row)
	}
	if !row.CreatedAt.Equal(now) || !row.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected timestamps: %v %v", row.CreatedAt, row.UpdatedAt)
	}

	later := now.Add(time.Hour)
	if err := UpdateSecretValue(ctx, d, "api-key", []byte("new-iv-new-iv-ne"), []byte("rotated"), later); err != nil {
		t.Fatalf("UpdateSecretValue returned error: %v", err)
	}
	row, err = GetSecretByName(ctx, d, "api-key")
	if err != nil {
		t.Fatalf("GetSecretByName returned error: %v", err)
	}
	if !bytes.Equal(row.Value, []byte("rotated")) || !row.UpdatedAt.Equal(later) || !row.CreatedAt.Equal(now) {
		t.Fatalf("update not applied: %+v", row)
	}

	if err := UpdateSecretValue(ctx, d, "missing", []byte("x"), []byte("y"), later); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for missing update, got %v", err)
	}
	if _, err := GetSecretByName(ctx, d, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for missing get, got %v", err)
	}

	if err := DeleteSecretByName(ctx, d, "api-key"); err != nil {
		t.Fatalf("DeleteSecretByName returned error: %v", err)
	}
	if err := DeleteSecretByName(ctx, d, "api-key"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for second delete, got %v", err)
	}

	n, err := CountSecrets(ctx, d)
	if err != nil {
		t.Fatalf("CountSecrets returned error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty table, got %d rows", n)
	}
}

func TestListSecretsOrderedByName(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	now := time.Now()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := InsertSecret(ctx, d, name, []byte("iv"), []byte("v-"+name), now); err != nil {
			t.Fatalf("InsertSecret(%s) returned error: %v", name, err)
		}
	}

	rows, err := ListSecrets(ctx, d)
	if err != nil {
		t.Fatalf("ListSecrets returned error: %v", err)
	}
	if len(rows) != 3 || rows[0].Name != "alpha" || rows[1].Name != "mid" || rows[2].Name != "zeta" {
		t.Fatalf("unexpected order: %+v", rows)
	}
}

func TestSnapshotLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	d := openTestDB(t)
	now := time.Now()

	for _, name := range []string{"one", "two", "three"} {
		if _, err := InsertSecret(ctx, d, name, []byte("iv-"+name), []byte("value-"+name), now); err != nil {
			t.Fatalf("InsertSecret returned error: %v", err)
		}
	}
	if err := DeleteSecretByName(ctx, d, "three"); err != nil {
		t.Fatalf("DeleteSecretByName returned error: %v", err)
	}

	image, err := Snapshot(ctx, d, tmp)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if !bytes.HasPrefix(image, []byte("SQLite format 3\x00")) {
		t.Fatalf("snapshot does not look like a SQLite image")
	}
	assertDirEmpty(t, tmp)

	loaded, err := Load(ctx, image, tmp)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	defer Close(loaded)
	assertDirEmpty(t, tmp)

	rows, err := ListSecrets(ctx, loaded)
	if err != nil {
		t.Fatalf("ListSecrets returned error: %v", err)
	}
	if len(rows) != 2 || rows[0].Name != "one" || rows[1].Name != "two" {
		t.Fatalf("unexpected rows after load: %+v", rows)
	}
	if !bytes.Equal(rows[1].Value, []byte("value-two")) {
		t.Fatalf("value mismatch after load: %q", rows[1].Value)
	}

	// The sequence survives so the deleted id is not handed out again.
	id, err := InsertSecret(ctx, loaded, "four", []byte("iv"), []byte("v"), now)
	if err != nil {
		t.Fatalf("InsertSecret returned error: %v", err)
	}
	if id != 4 {
		t.Fatalf("expected id 4 after reload, got %d", id)
	}
}

func TestSnapshotOfEmptyDatabaseLoads(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	d := openTestDB(t)

	image, err := Snapshot(ctx, d, tmp)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	loaded, err := Load(ctx, image, tmp)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	defer Close(loaded)

	n, err := CountSecrets(ctx, loaded)
	if err != nil {
		t.Fatalf("CountSecrets returned error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	cases := map[string][]byte{
		"random bytes": bytes.Repeat([]byte{0xAB}, 4096),
		"empty":        {},
	}
	for name, image := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(ctx, image, tmp); !errors.Is(err, ErrInvalidSnapshot) {
				t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
			}
			assertDirEmpty(t, tmp)
		})
	}
}

func TestLoadRejectsForeignDatabase(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()

	other, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open returned error: %v", err)
	}
	other.SetMaxOpenConns(1)
	defer other.Close()
	if _, err := other.Exec(`CREATE TABLE notes (body TEXT)`); err != nil {
		t.Fatalf("create table returned error: %v", err)
	}

	image, err := Snapshot(ctx, &DB{sql: other}, tmp)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if _, err := Load(ctx, image, tmp); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot, got %v", err)
	}
	if !errors.Is(ErrInvalidSnapshot, nerrors.ErrInvalidCiphertext) {
		t.Fatalf("ErrInvalidSnapshot should refine ErrInvalidCiphertext")
	}
}

func TestNilHandle(t *testing.T) {
	ctx := context.Background()
	if _, err := InsertSecret(ctx, nil, "a", nil, nil, time.Now()); err == nil {
		t.Fatalf("expected error for nil handle")
	}
	if _, err := Snapshot(ctx, nil, t.TempDir()); err == nil {
		t.Fatalf("expected error for nil handle")
	}
	if err := Close(nil); err != nil {
		t.Fatalf("Close(nil) returned error: %v", err)
	}
}
