package krypto

import (
	"bytes"
	"errors"
	"testing"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
)

func TestSecretKeySealsAndWipesInput(t *testing.T) {
	raw := bytes.Repeat([]byte{0xAB}, KeySize)
	want := append([]byte(nil), raw...)

	k, err := NewSecretKey(raw)
	if err != nil {
		t.Fatalf("NewSecretKey returned error: %v", err)
	}
	if !bytes.Equal(raw, make([]byte, KeySize)) {
		t.Fatal("NewSecretKey should wipe the caller's slice")
	}

	err = k.Open(func(key []byte) error {
		if !bytes.Equal(key, want) {
			t.Fatal("opened key differs from sealed key")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	ok, err := k.Equal(want)
	if err != nil || !ok {
		t.Fatalf("Equal(correct) = %v, %v", ok, err)
	}
	ok, err = k.Equal(make([]byte, KeySize))
	if err != nil || ok {
		t.Fatalf("Equal(wrong) = %v, %v", ok, err)
	}
}

func TestSecretKeyDestroy(t *testing.T) {
	k, err := NewSecretKey(make([]byte, KeySize))
	if err != nil {
		t.Fatalf("NewSecretKey returned error: %v", err)
	}
	k.Destroy()
	if err := k.Open(func([]byte) error { return nil }); !errors.Is(err, nerrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument after Destroy, got %v", err)
	}
	if _, err := k.Equal(make([]byte, KeySize)); !errors.Is(err, nerrors.ErrInvalidArgument) {
		t.Fatalf("expected Equal to fail after Destroy, got %v", err)
	}

	k.Destroy()
	var nilKey *SecretKey
	nilKey.Destroy()
}

func TestNewSecretKeyRejectsWrongLength(t *testing.T) {
	if _, err := NewSecretKey(make([]byte, 8)); !errors.Is(err, nerrors.ErrInvalidKeyLength) {
		t.Fatalf("expected ErrInvalidKeyLength, got %v", err)
	}
}
