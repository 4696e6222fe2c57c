package auth

import (
	"errors"
	"strings"
	"testing"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

func TestValidateMasterPasswordRules(t *testing.T) {
	cases := []struct {
		name string
		pw   string
		want string
	}{
		{"too short", "Ab1!", "at least 12"},
		{"no upper", "lowercase-only-1!", "uppercase"},
		{"no digit", "NoDigitsHere-at-all!", "digit"},
		{"no special", "NoSpecials1234567", "special"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMasterPassword(tc.pw)
			if !errors.Is(err, nerrors.ErrWeakPassword) {
				t.Fatalf("expected ErrWeakPassword, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected message containing %q, got %q", tc.want, err.Error())
			}
		})
	}
}

func TestValidateMasterPasswordAcceptsStrong(t *testing.T) {
	if err := ValidateMasterPassword("Tr0ub4dor&3-Quartz-Nebula-Oxbow"); err != nil {
		t.Fatalf("ValidateMasterPassword returned error: %v", err)
	}
}

func TestValidateRejectsGuessable(t *testing.T) {
	// Satisfies every character class but is a keyboard walk.
	err := ValidateMasterPassword("Qwerty123456!")
	if !errors.Is(err, nerrors.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestValidateOptionsRelaxed(t *testing.T) {
	opts := ValidateOptions{MinLength: 4}
	if err := ValidateMasterPasswordAdvanced("abcd", opts); err != nil {
		t.Fatalf("relaxed policy returned error: %v", err)
	}
}

func TestStrengthOrdering(t *testing.T) {
	weakScore := Strength("password", nil)
	strongScore := Strength("vX7#qL9!mZ2@rT5$wP8", nil)
	if weakScore >= strongScore {
		t.Fatalf("expected weak score %d below strong score %d", weakScore, strongScore)
	}
	if strongScore != 4 {
		t.Fatalf("expected top score for random password, got %d", strongScore)
	}
}

func TestStrengthPenalizesUserInputs(t *testing.T) {
	pw := "nivault-personal"
	without := Strength(pw, nil)
	with := Strength(pw, []string{"nivault", "personal"})
	if with > without {
		t.Fatalf("user inputs should not raise the score: %d > %d", with, without)
	}
}
