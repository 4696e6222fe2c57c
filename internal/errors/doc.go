// Package errors provides typed error values for nivault.
//
// Callers match failures with errors.Is rather than string comparison. Some
// errors are refinements of a broader kind: ErrInvalidKeyLength is also an
// ErrInvalidArgument, and every structural TLV failure is also an
// ErrInvalidFormat. Match the narrow error when the distinction matters and
// the broad one otherwise.
//
// # Error Categories
//
//   - Lifecycle errors: ErrAlreadyExists, ErrNotFound, ErrVaultClosed, ErrSaveFailed
//   - Format errors: ErrInvalidFormat and its refinements, ErrUnsupportedVersion
//   - Crypto errors: ErrInvalidCiphertext, ErrInvalidArgument and its refinements
//   - Secret errors: ErrSecretNotFound, ErrSecretExists
//   - Password errors: ErrPasswordMismatch, ErrWeakPassword
//
// ErrInvalidCiphertext deliberately conflates a wrong password, a relocated
// vault file and a corrupted file. The format does not authenticate which
// encryption layer failed, so no finer error exists.
//
// # Usage
//
//	v, err := mgr.OpenExisting(ctx, password, "personal")
//	if errors.Is(err, nerrors.ErrInvalidCiphertext) {
//	    // wrong password, moved file or corruption
//	}
package errors
