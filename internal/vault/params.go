package vault

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
	"github.com/Hussein-Mazeh/nivault/internal/tlv"
	"github.com/Hussein-Mazeh/nivault/krypto"
)

// MaxContentLength is the largest encrypted content a vault file can carry;
// ParseTLV rejects anything longer.
const MaxContentLength = tlv.DefaultMaxValueLength

// Magic identifies a vault parameter stream.
var Magic = [4]byte{'N', 'I', 'V', 'R'}

// Version is the on-disk format version.
type Version struct {
	Major, Minor, Patch uint8
}

// CurrentVersion is stamped on every vault written by this package.
var CurrentVersion = Version{Major: 1, Minor: 0, Patch: 0}

// KnownVersions lists every format version this package can read.
var KnownVersions = []Version{CurrentVersion}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Bytes returns the three-byte wire form.
func (v Version) Bytes() []byte {
	return []byte{v.Major, v.Minor, v.Patch}
}

// ParseVersion decodes the wire form and accepts only KnownVersions.
func ParseVersion(b []byte) (Version, error) {
	if len(b) != 3 {
		return Version{}, fmt.Errorf("version field of %d bytes: %w", len(b), nerrors.ErrUnsupportedVersion)
	}
	v := Version{Major: b[0], Minor: b[1], Patch: b[2]}
	if !slices.Contains(KnownVersions, v) {
		return Version{}, fmt.Errorf("version %s: %w", v, nerrors.ErrUnsupportedVersion)
	}
	return v, nil
}

// MissingFieldError lists every required tag absent from a parameter stream.
type MissingFieldError struct {
	Tags []tlv.Tag
}

func (e *MissingFieldError) Error() string {
	names := make([]string, len(e.Tags))
	for i, tag := range e.Tags {
		names[i] = tag.String()
	}
	return fmt.Sprintf("missing required field(s): %s", strings.Join(names, ", "))
}

func (e *MissingFieldError) Unwrap() error { return nerrors.ErrMissingField }

// Parameters is the self-describing header of a vault file together with the
// encrypted database snapshot. A Parameters value is never mutated after
// construction; WithContent yields a new value instead.
type Parameters struct {
	magic   [4]byte
	version Version
	salt    []byte
	kdf     krypto.KDFParams
	iv      []byte
	content []byte
}

// DefaultParameters stamps the current magic and version, generates a fresh
// IV and leaves content empty. It is used only while creating a vault.
func DefaultParameters(salt []byte, kdf krypto.KDFParams) (*Parameters, error) {
	if len(salt) < krypto.SaltSize {
		return nil, fmt.Errorf("salt must be at least %d bytes: %w", krypto.SaltSize, nerrors.ErrInvalidArgument)
	}
	if err := kdf.Validate(); err != nil {
		return nil, err
	}
	iv, err := krypto.GenerateRandomIV()
	if err != nil {
		return nil, err
	}
	return &Parameters{
		magic:   Magic,
		version: CurrentVersion,
		salt:    bytes.Clone(salt),
		kdf:     kdf,
		iv:      iv,
	}, nil
}

// Magic returns the file magic.
func (p *Parameters) Magic() [4]byte { return p.magic }

// Version returns the format version.
func (p *Parameters) Version() Version { return p.version }

// KDF returns the Argon2id cost the key was derived with.
func (p *Parameters) KDF() krypto.KDFParams { return p.kdf }

// Salt returns a copy of the KDF salt.
func (p *Parameters) Salt() []byte { return bytes.Clone(p.salt) }

// IV returns a copy of the content IV.
func (p *Parameters) IV() []byte { return bytes.Clone(p.iv) }

// Content returns a copy of the encrypted database snapshot.
func (p *Parameters) Content() []byte { return bytes.Clone(p.content) }

// ContentLen returns the length of the encrypted content without copying it.
func (p *Parameters) ContentLen() int { return len(p.content) }

// WithContent returns a copy of p that owns ciphertext. The caller must not
// touch ciphertext afterwards.
func (p *Parameters) WithContent(ciphertext []byte) *Parameters {
	next := *p
	next.content = ciphertext
	return &next
}

// Equal reports whether both values carry identical fields.
func (p *Parameters) Equal(other *Parameters) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.magic == other.magic &&
		p.version == other.version &&
		p.kdf == other.kdf &&
		bytes.Equal(p.salt, other.salt) &&
		bytes.Equal(p.iv, other.iv) &&
		bytes.Equal(p.content, other.content)
}

// WriteTLV serializes p as a TLV stream in ascending tag order.
func (p *Parameters) WriteTLV(w io.Writer) (int64, error) {
	if len(p.content) == 0 {
		return 0, fmt.Errorf("serialize parameters: %w", nerrors.ErrEmptyContent)
	}
	if len(p.content) > MaxContentLength {
		return 0, fmt.Errorf("content of %d bytes exceeds %d: %w", len(p.content), MaxContentLength, nerrors.ErrInvalidLength)
	}
	for _, v := range []uint32{p.kdf.MemoryKiB, p.kdf.Iterations} {
		if v > math.MaxInt32 {
			return 0, fmt.Errorf("kdf parameter %d exceeds int32: %w", v, nerrors.ErrInvalidArgument)
		}
	}

	tw := tlv.NewWriter(w)
	tw.Set(tlv.TagContent, p.content)
	tw.Set(tlv.TagIV, p.iv)
	tw.SetUint32(tlv.TagKDFParallelism, uint32(p.kdf.Parallelism))
	tw.SetUint32(tlv.TagKDFIterations, p.kdf.Iterations)
	tw.SetUint32(tlv.TagKDFMemory, p.kdf.MemoryKiB)
	tw.Set(tlv.TagSalt, p.salt)
	tw.Set(tlv.TagVersion, p.version.Bytes())
	tw.Set(tlv.TagMagic, p.magic[:])
	return tw.Flush()
}

// MarshalTLV returns the TLV serialization of p.
func (p *Parameters) MarshalTLV() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := p.WriteTLV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var requiredTags = []tlv.Tag{
	tlv.TagMagic,
	tlv.TagVersion,
	tlv.TagSalt,
	tlv.TagKDFMemory,
	tlv.TagKDFIterations,
	tlv.TagKDFParallelism,
	tlv.TagIV,
	tlv.TagContent,
}

// ParseTLV decodes a parameter stream written by WriteTLV.
func ParseTLV(r io.Reader) (*Parameters, error) {
	fields := make(map[tlv.Tag][]byte, len(requiredTags))
	for el, err := range tlv.NewReader(r).All() {
		if err != nil {
			return nil, fmt.Errorf("parse vault parameters: %w", err)
		}
		if _, dup := fields[el.Tag]; dup {
			return nil, fmt.Errorf("duplicate %s field: %w", el.Tag, nerrors.ErrInvalidFormat)
		}
		fields[el.Tag] = el.Value
	}

	if magic, ok := fields[tlv.TagMagic]; ok && !bytes.Equal(magic, Magic[:]) {
		return nil, fmt.Errorf("bad magic %q: %w", magic, nerrors.ErrInvalidFormat)
	}
	var version Version
	if raw, ok := fields[tlv.TagVersion]; ok {
		v, err := ParseVersion(raw)
		if err != nil {
			return nil, err
		}
		version = v
	}

	var missing []tlv.Tag
	for _, tag := range requiredTags {
		if _, ok := fields[tag]; !ok {
			missing = append(missing, tag)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFieldError{Tags: missing}
	}

	salt := fields[tlv.TagSalt]
	if len(salt) < krypto.SaltSize {
		return nil, fmt.Errorf("salt of %d bytes: %w", len(salt), nerrors.ErrInvalidFieldLength)
	}
	iv := fields[tlv.TagIV]
	if len(iv) != krypto.IVSize {
		return nil, fmt.Errorf("iv of %d bytes: %w", len(iv), nerrors.ErrInvalidFieldLength)
	}

	memory, err := positiveInt32(fields, tlv.TagKDFMemory)
	if err != nil {
		return nil, err
	}
	iterations, err := positiveInt32(fields, tlv.TagKDFIterations)
	if err != nil {
		return nil, err
	}
	parallelism, err := positiveInt32(fields, tlv.TagKDFParallelism)
	if err != nil {
		return nil, err
	}
	if parallelism > math.MaxUint8 {
		return nil, fmt.Errorf("parallelism %d: %w", parallelism, nerrors.ErrInvalidFormat)
	}

	content := fields[tlv.TagContent]
	if len(content) == 0 {
		return nil, fmt.Errorf("parse vault parameters: %w", nerrors.ErrEmptyContent)
	}

	kdf := krypto.KDFParams{
		MemoryKiB:   uint32(memory),
		Iterations:  uint32(iterations),
		Parallelism: uint8(parallelism),
	}
	return &Parameters{
		magic:   Magic,
		version: version,
		salt:    salt,
		kdf:     kdf,
		iv:      iv,
		content: content,
	}, nil
}

func positiveInt32(fields map[tlv.Tag][]byte, tag tlv.Tag) (int32, error) {
	raw := fields[tag]
	if len(raw) != 4 {
		return 0, fmt.Errorf("%s of %d bytes: %w", tag, len(raw), nerrors.ErrInvalidFieldLength)
	}
	v := int32(binary.BigEndian.Uint32(raw))
	if v <= 0 {
		return 0, fmt.Errorf("%s is %d: %w", tag, v, nerrors.ErrInvalidFormat)
	}
	return v, nil
}

// EncryptContent encrypts plaintext under masterKey and this record's IV.
func (p *Parameters) EncryptContent(masterKey, plaintext []byte) ([]byte, error) {
	if err := checkMasterKey(masterKey); err != nil {
		return nil, err
	}
	return krypto.Encrypt(plaintext, masterKey, p.iv)
}

// DecryptContent decrypts this record's content under masterKey.
func (p *Parameters) DecryptContent(masterKey []byte) ([]byte, error) {
	if err := checkMasterKey(masterKey); err != nil {
		return nil, err
	}
	return krypto.Decrypt(p.content, masterKey, p.iv)
}

// EncryptContentStream encrypts everything read from r and returns the ciphertext.
func (p *Parameters) EncryptContentStream(ctx context.Context, masterKey []byte, r io.Reader) ([]byte, error) {
	if err := checkMasterKey(masterKey); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := krypto.EncryptStream(ctx, r, &out, masterKey, p.iv, krypto.DefaultStreamBufferSize); err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}
	return out.Bytes(), nil
}

// DecryptContentStream writes the decrypted content to w. On error w may hold
// partial plaintext which the caller must discard.
func (p *Parameters) DecryptContentStream(ctx context.Context, masterKey []byte, w io.Writer) error {
	if err := checkMasterKey(masterKey); err != nil {
		return err
	}
	if err := krypto.DecryptStream(ctx, bytes.NewReader(p.content), w, masterKey, p.iv, krypto.DefaultStreamBufferSize); err != nil {
		return fmt.Errorf("decrypt content: %w", err)
	}
	return nil
}

func checkMasterKey(key []byte) error {
	if len(key) != krypto.KeySize {
		return fmt.Errorf("master key of %d bytes: %w", len(key), nerrors.ErrInvalidArgument)
	}
	return nil
}
