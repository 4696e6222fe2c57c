package vault

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

func TestDeriveFileKey(t *testing.T) {
	long := "/home/user/.local/share/nivault/vault1.nivr"
	key := DeriveFileKey(long, 32)
	require.Equal(t, []byte(long[len(long)-32:]), key)

	short := DeriveFileKey("/v.nivr", 12)
	require.Equal(t, append(make([]byte, 5), []byte("/v.nivr")...), short)
}

func TestDeriveFileIVInterleaves(t *testing.T) {
	key := []byte("ABCDEFGH")
	require.Equal(t, []byte("AHBGCFDE"), DeriveFileIV(key, 16))
	require.Equal(t, []byte("AHBG"), DeriveFileIV(key, 4))
	require.Equal(t, []byte("AHB"), DeriveFileIV(key, 3))

	full := make([]byte, 32)
	for i := range full {
		full[i] = byte(i)
	}
	iv := DeriveFileIV(full, 16)
	require.Equal(t, []byte{0, 31, 1, 30, 2, 29, 3, 28, 4, 27, 5, 26, 6, 25, 7, 24}, iv)
}

func TestOuterEnvelopeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault1.nivr")
	payload := []byte("serialized parameters")

	ct, err := WrapOuter(payload, path)
	require.NoError(t, err)
	require.NotEqual(t, payload, ct)

	pt, err := UnwrapOuter(ct, path)
	require.NoError(t, err)
	require.Equal(t, payload, pt)
}

func TestOuterEnvelopeBoundToPath(t *testing.T) {
	dir := t.TempDir()
	payload := bytes.Repeat([]byte("P"), 64)

	ct, err := WrapOuter(payload, filepath.Join(dir, "original.nivr"))
	require.NoError(t, err)

	pt, err := UnwrapOuter(ct, filepath.Join(dir, "moved-elsewhere.nivr"))
	if err == nil {
		require.NotEqual(t, payload, pt)
		return
	}
	require.ErrorIs(t, err, nerrors.ErrInvalidCiphertext)
}

func TestOuterEnvelopeRequiresAbsolutePath(t *testing.T) {
	_, err := WrapOuter([]byte("x"), "relative/vault.nivr")
	require.ErrorIs(t, err, nerrors.ErrInvalidArgument)
	_, err = UnwrapOuter(make([]byte, 16), "vault.nivr")
	require.ErrorIs(t, err, nerrors.ErrInvalidArgument)
}

func TestComposedLayersRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "composed.nivr")
	key := bytes.Repeat([]byte{9}, 32)
	snapshot := bytes.Repeat([]byte("db page "), 512)

	p := testParameters(t)
	ct, err := p.EncryptContent(key, snapshot)
	require.NoError(t, err)
	p = p.WithContent(ct)

	file, err := encodeFile(p, path)
	require.NoError(t, err)
	decoded, err := decodeFile(file, path)
	require.NoError(t, err)
	require.True(t, p.Equal(decoded))

	pt, err := decoded.DecryptContent(key)
	require.NoError(t, err)
	require.Equal(t, snapshot, pt)
}
