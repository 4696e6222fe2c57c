package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nbutton23/zxcvbn-go"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_{|}~`"

// ValidateOptions tunes the master password policy.
type ValidateOptions struct {
	MinLength      int
	RequireUpper   bool
	RequireDigit   bool
	RequireSpecial bool
	// MinZXCVBNScore is the lowest accepted zxcvbn score (0-4); 0 disables the check.
	MinZXCVBNScore int
	// UserInputs are penalized by zxcvbn, e.g. the vault name.
	UserInputs []string
}

// DefaultValidateOptions returns the policy applied to new vaults.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{
		MinLength:      12,
		RequireUpper:   true,
		RequireDigit:   true,
		RequireSpecial: true,
		MinZXCVBNScore: 3,
	}
}

// ValidateMasterPassword applies the default master password policy.
func ValidateMasterPassword(pw string) error {
	return ValidateMasterPasswordAdvanced(pw, DefaultValidateOptions())
}

// ValidateMasterPasswordAdvanced applies opts to pw. Failures wrap ErrWeakPassword.
func ValidateMasterPasswordAdvanced(pw string, opts ValidateOptions) error {
	if len([]rune(pw)) < opts.MinLength {
		return weak("password must be at least %d characters long", opts.MinLength)
	}
	if opts.RequireUpper && !hasUpper(pw) {
		return weak("password must include an uppercase letter")
	}
	if opts.RequireDigit && !hasDigit(pw) {
		return weak("password must include a digit")
	}
	if opts.RequireSpecial && !hasSpecial(pw) {
		return weak("password must include a special character")
	}
	if opts.MinZXCVBNScore > 0 {
		if score := Strength(pw, opts.UserInputs); score < opts.MinZXCVBNScore {
			return weak("password is too guessable (strength %d of 4, need %d)", score, opts.MinZXCVBNScore)
		}
	}
	return nil
}

// Strength returns the zxcvbn score of pw from 0 (trivial) to 4 (strong).
func Strength(pw string, userInputs []string) int {
	return zxcvbn.PasswordStrength(pw, userInputs).Score
}

func weak(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), nerrors.ErrWeakPassword)
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func hasSpecial(s string) bool {
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			return true
		}
	}
	return false
}
