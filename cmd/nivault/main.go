package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/awnumar/memguard"

	nerrors "github.com/Hussein-Mazeh/nivault/internal/errors"
	"github.com/Hussein-Mazeh/nivault/internal/service"
)

const cliVersion = "0.2.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	err := newRootCmd(a).ExecuteContext(ctx)
	a.shutdown()
	stop()
	handleError(err)
	memguard.SafeExit(0)
}

// handleError prints err and exits: 1 for errors the user can act on, 2 for
// anything unexpected.
func handleError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	switch {
	case errors.As(err, &uerr):
		fmt.Fprintln(os.Stderr, errorMark(), uerr.Error())
		memguard.SafeExit(1)
	case isUserFacing(err):
		msg := nerrors.Describe(err)
		if errors.Is(err, nerrors.ErrInvalidArgument) && !errors.Is(err, nerrors.ErrSaveFailed) {
			msg = err.Error()
		}
		fmt.Fprintln(os.Stderr, errorMark(), msg)
		memguard.SafeExit(1)
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, errorMark(), "interrupted")
		memguard.SafeExit(1)
	}

	fmt.Fprintf(os.Stderr, "%s unexpected error: %v\n", errorMark(), err)
	memguard.SafeExit(2)
}

func isUserFacing(err error) bool {
	for _, kind := range []error{
		nerrors.ErrAlreadyExists,
		nerrors.ErrNotFound,
		nerrors.ErrInvalidFormat,
		nerrors.ErrUnsupportedVersion,
		nerrors.ErrInvalidCiphertext,
		nerrors.ErrInvalidArgument,
		nerrors.ErrSaveFailed,
		nerrors.ErrVaultClosed,
		nerrors.ErrSecretNotFound,
		nerrors.ErrSecretExists,
		nerrors.ErrPasswordMismatch,
		nerrors.ErrWeakPassword,
		service.ErrLocked,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
