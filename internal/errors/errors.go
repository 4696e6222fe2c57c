package errors

import "errors"

// kindError is a sentinel that also matches a broader sentinel through Unwrap.
type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.parent }

func refine(parent error, msg string) error {
	return &kindError{msg: msg, parent: parent}
}

// Lifecycle errors.
var (
	// ErrAlreadyExists indicates a vault file is already present at the create target.
	ErrAlreadyExists = errors.New("vault already exists")

	// ErrNotFound indicates no vault file exists at the open target.
	ErrNotFound = errors.New("vault not found")

	// ErrVaultClosed indicates an operation on a vault that has been closed.
	ErrVaultClosed = errors.New("vault is closed")

	// ErrSaveFailed indicates a save did not durably apply.
	ErrSaveFailed = errors.New("vault save failed")
)

// Format errors indicate a structurally invalid vault file.
var (
	// ErrInvalidFormat indicates the vault file is not a well-formed parameter record.
	ErrInvalidFormat = errors.New("invalid vault format")

	// ErrUnsupportedVersion indicates a format version this build does not know.
	ErrUnsupportedVersion = errors.New("unsupported vault format version")

	// ErrMissingField indicates one or more required TLV fields are absent.
	ErrMissingField = refine(ErrInvalidFormat, "missing required field")

	// ErrInvalidFieldLength indicates a field value has an illegal size.
	ErrInvalidFieldLength = refine(ErrInvalidFormat, "invalid field length")

	// ErrEmptyContent indicates the encrypted content field is zero-length.
	ErrEmptyContent = refine(ErrInvalidFormat, "empty vault content")

	// ErrUnknownTag indicates a TLV element with an unrecognized tag.
	ErrUnknownTag = refine(ErrInvalidFormat, "unknown tlv tag")

	// ErrUnexpectedEndOfStream indicates a TLV length or value field was truncated.
	ErrUnexpectedEndOfStream = refine(ErrInvalidFormat, "unexpected end of tlv stream")

	// ErrInvalidLength indicates a TLV element declared a negative or absurd length.
	ErrInvalidLength = refine(ErrInvalidFormat, "invalid tlv length")
)

// Cryptographic errors.
var (
	// ErrInvalidCiphertext indicates a decryption failed its length or padding check.
	ErrInvalidCiphertext = errors.New("decryption failed")

	// ErrInvalidArgument indicates a malformed input such as an empty password.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidKeyLength indicates a key that is not 32 bytes.
	ErrInvalidKeyLength = refine(ErrInvalidArgument, "invalid key length")

	// ErrInvalidIVLength indicates an IV that is not 16 bytes.
	ErrInvalidIVLength = refine(ErrInvalidArgument, "invalid iv length")
)

// Secret errors.
var (
	// ErrSecretNotFound indicates no secret with the requested name exists.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrSecretExists indicates a secret with the requested name already exists.
	ErrSecretExists = errors.New("secret already exists")
)

// Password errors.
var (
	// ErrPasswordMismatch indicates a password failed verification against the vault.
	ErrPasswordMismatch = errors.New("password does not match")

	// ErrWeakPassword indicates a master password rejected by policy.
	ErrWeakPassword = errors.New("password does not meet policy requirements")
)

// Describe maps err to the message shown to a user. Structurally
// distinguishable failures get their own message; every decryption failure
// shares one.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSaveFailed):
		return "changes could not be saved; the vault was closed"
	case errors.Is(err, ErrAlreadyExists):
		return "a vault with that name already exists"
	case errors.Is(err, ErrNotFound):
		return "no vault with that name exists"
	case errors.Is(err, ErrUnsupportedVersion):
		return "the vault was written by an unsupported format version"
	case errors.Is(err, ErrInvalidFormat):
		return "the vault file is not a valid vault"
	case errors.Is(err, ErrInvalidCiphertext):
		return "unable to decrypt the vault: wrong password, moved file or corrupted data"
	case errors.Is(err, ErrPasswordMismatch):
		return "password verification failed"
	case errors.Is(err, ErrVaultClosed):
		return "the vault is closed"
	case errors.Is(err, ErrSecretNotFound):
		return "no secret with that name exists"
	case errors.Is(err, ErrSecretExists):
		return "a secret with that name already exists"
	case errors.Is(err, ErrWeakPassword):
		return err.Error()
	case errors.Is(err, ErrInvalidArgument):
		return "invalid input"
	default:
		return err.Error()
	}
}
