package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Hussein-Mazeh/nivault/auth"
	"github.com/Hussein-Mazeh/nivault/internal/config"
	"github.com/Hussein-Mazeh/nivault/internal/logger"
	"github.com/Hussein-Mazeh/nivault/internal/service"
	"github.com/Hussein-Mazeh/nivault/internal/vault"
	"github.com/Hussein-Mazeh/nivault/krypto"
)

var (
	successMark = color.New(color.FgGreen).SprintFunc()
	errorMark   = func() string { return color.New(color.FgRed).Sprint("✗") }
	highlight   = color.New(color.FgYellow).SprintFunc()
	muted       = color.New(color.Faint).SprintFunc()
)

// app carries the per-invocation state shared by every command.
type app struct {
	stdin       io.Reader
	in          *bufio.Reader
	out         io.Writer
	errOut      io.Writer
	interactive bool

	dirFlag    string
	configFlag string
	verbose    bool

	cfg config.Config
	log *logger.Logger
	svc *service.Service
}

func newApp(stdin io.Reader, out, errOut io.Writer) *app {
	a := &app{
		stdin:  stdin,
		in:     bufio.NewReader(stdin),
		out:    out,
		errOut: errOut,
		log:    logger.New(),
	}
	if f, ok := stdin.(*os.File); ok {
		a.interactive = term.IsTerminal(int(f.Fd()))
	}
	return a
}

// setup loads configuration and wires the service. Flags win over the
// environment, which wins over the config file.
func (a *app) setup() error {
	path, err := a.configPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return userError{msg: fmt.Sprintf("invalid configuration: %v", err)}
	}
	if a.dirFlag != "" {
		cfg.VaultDir = a.dirFlag
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if a.verbose {
		level = "debug"
	}
	if err := a.log.Init(level); err != nil {
		return userError{msg: fmt.Sprintf("invalid log level: %v", err)}
	}

	manager, err := vault.NewManager(cfg.VaultDir,
		vault.WithKDFParams(cfg.KDF.Params()),
		vault.WithLogger(a.log.Log),
	)
	if err != nil {
		return err
	}

	policy := auth.DefaultValidateOptions()
	policy.MinZXCVBNScore = cfg.MinPasswordScore
	a.svc = service.New(manager, policy, a.log.Log)
	a.log.Log.Debug("configuration loaded",
		zap.String("config", path),
		zap.String("vault_dir", manager.Dir()),
	)
	return nil
}

func (a *app) configPath() (string, error) {
	if a.configFlag != "" {
		return a.configFlag, nil
	}
	return config.DefaultPath()
}

func (a *app) shutdown() {
	if a.svc != nil {
		_ = a.svc.Close()
	}
	a.log.Sync()
}

// promptPassword reads a secret without echo from a terminal, or one line
// from stdin when it is not a terminal.
func (a *app) promptPassword(prompt string) ([]byte, error) {
	if a.interactive {
		fmt.Fprint(a.errOut, prompt)
		pw, err := term.ReadPassword(int(a.stdin.(*os.File).Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return nil, err
		}
		return pw, nil
	}

	line, err := a.in.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		krypto.Wipe(line)
		return nil, userError{msg: "no input provided for: " + strings.TrimSuffix(strings.TrimSpace(prompt), ":")}
	}
	n := len(line)
	for n > 0 && (line[n-1] == '\n' || line[n-1] == '\r') {
		n--
	}
	pw := append([]byte{}, line[:n]...)
	krypto.Wipe(line)
	return pw, nil
}

// withSpinner runs fn while a spinner animates on a terminal stderr. Key
// derivation is the slow step it covers.
func (a *app) withSpinner(message string, fn func() error) error {
	f, ok := a.errOut.(*os.File)
	if !ok || a.verbose || !term.IsTerminal(int(f.Fd())) {
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(f))
	s.Suffix = " " + message
	if err := s.Color("cyan"); err != nil {
		a.log.Log.Debug("spinner color", zap.Error(err))
	}
	s.Start()
	err := fn()
	s.Stop()
	return err
}

// unlock prompts for the master password and opens the named vault.
func (a *app) unlock(ctx context.Context, name string) error {
	master, err := a.promptPassword("Master password: ")
	if err != nil {
		return err
	}
	defer krypto.Wipe(master)
	return a.withSpinner("Unlocking "+name+"...", func() error {
		return a.svc.Unlock(ctx, name, master)
	})
}

// confirmPassword re-prompts before a destructive change and runs fn with
// the answer.
func (a *app) confirmPassword(fn func(master []byte) error) error {
	master, err := a.promptPassword("Confirm master password: ")
	if err != nil {
		return err
	}
	defer krypto.Wipe(master)
	return fn(master)
}
