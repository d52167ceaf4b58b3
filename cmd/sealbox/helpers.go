package main

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sealbox/sealbox"

	"github.com/briandowns/spinner"
	"golang.org/x/term"
)

// startSpinner creates and starts a spinner with the given message when not
// in verbose or debug mode. Returns the spinner and a function that should
// be deferred to clean up.
//
// spinner.FinalMSG values do not need trailing newlines; the cleanup
// function appends one before printing.
func startSpinner(message string) (*spinner.Spinner, func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message

	// Ignore color errors - continue without a colored spinner if it fails.
	_ = s.Color("cyan")

	if !verbose && !debug {
		s.Start()
	}

	cleanup := func() {
		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ensureNewline(s.FinalMSG)
			// Clear FinalMSG so s.Stop() doesn't print it.
			s.FinalMSG = ""
		}
		if !verbose && !debug {
			s.Stop()
		}
		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}

	return s, cleanup
}

func ensureNewline(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		return s + "\n"
	}
	return s
}

// passwordFromSource returns the container password from --password-file or
// the SEALBOX_PASSWORD environment variable. The boolean reports whether a
// non-interactive source was configured.
func passwordFromSource() ([]byte, bool, error) {
	if passwordFile != "" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return nil, true, fmt.Errorf("failed to read password file: %w", err)
		}
		// First line only, so the file may end with a newline.
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			data = data[:i]
		}
		data = bytes.TrimSuffix(data, []byte("\r"))
		if len(data) == 0 {
			return nil, true, fmt.Errorf("password file %s is empty", passwordFile)
		}
		return data, true, nil
	}
	if env, ok := os.LookupEnv("SEALBOX_PASSWORD"); ok {
		return []byte(env), true, nil
	}
	return nil, false, nil
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("interactive input required")
	}
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("password read failed: %w", err)
	}
	return pw, nil
}

// resolveNewPassword returns the password protecting a new container.
// Non-interactive sources are taken as-is; an interactive prompt asks for
// the password twice.
func resolveNewPassword() ([]byte, error) {
	if pw, ok, err := passwordFromSource(); ok || err != nil {
		return pw, err
	}
	return promptNewPassword()
}

// promptNewPassword reads a password twice and requires both entries to
// match. Used whenever a new password protects a container.
func promptNewPassword() ([]byte, error) {
	p1, err := promptPassword("Enter password: ")
	if err != nil {
		return nil, err
	}
	p2, err := promptPassword("Confirm password: ")
	if err != nil {
		zeroBytes(p1)
		return nil, err
	}
	if len(p1) != len(p2) || subtle.ConstantTimeCompare(p1, p2) != 1 {
		zeroBytes(p1)
		zeroBytes(p2)
		return nil, errors.New("password mismatch")
	}
	zeroBytes(p2)
	return p1, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// newEngine builds an engine over the host filesystem. A keyring path is
// optional; commands that take recipients require one.
func newEngine(keyringPath string, cipherName string, chunkSize uint32) (*sealbox.Engine, error) {
	fs := &osFS{}

	config := &sealbox.Config{ChunkSize: chunkSize}
	if workers > 0 {
		config.Parallel = sealbox.DefaultParallelConfig()
		config.Parallel.MaxWorkers = workers
	}
	if cipherName != "" {
		suite, err := sealbox.ParseCipherSuite(cipherName)
		if err != nil {
			return nil, err
		}
		config.Cipher = suite
	}
	if keyringPath != "" {
		kr, err := sealbox.LoadKeyring(fs, keyringPath)
		if err != nil {
			return nil, err
		}
		config.Keyring = kr
	}

	return sealbox.New(fs, config)
}

// resolveMaterial turns the --as flag, a configured password source or a
// password prompt into key material for opening a container.
func resolveMaterial(asRecipient string) (sealbox.KeyMaterial, func(), error) {
	if asRecipient != "" {
		return sealbox.RecipientMaterial{RecipientID: asRecipient}, func() {}, nil
	}
	pw, ok, err := passwordFromSource()
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		pw, err = promptPassword("Enter password: ")
		if err != nil {
			return nil, nil, err
		}
	}
	return sealbox.PasswordMaterial{Password: pw}, func() { zeroBytes(pw) }, nil
}

// keyringDoc mirrors the keyring file layout read by sealbox.LoadKeyring.
type keyringDoc struct {
	KeyPairs []keyringDocPair    `json:"key_pairs"`
	Contacts []keyringDocContact `json:"contacts"`
}

type keyringDocPair struct {
	Name       string `json:"name"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

type keyringDocContact struct {
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
}

func (d *keyringDoc) hasName(name string) bool {
	for _, p := range d.KeyPairs {
		if p.Name == name {
			return true
		}
	}
	for _, c := range d.Contacts {
		if c.Name == name {
			return true
		}
	}
	return false
}

// readKeyringDoc loads a keyring file, returning an empty document if the
// file does not exist yet.
func readKeyringDoc(path string) (*keyringDoc, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &keyringDoc{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	var doc keyringDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse keyring: %w", err)
	}
	return &doc, nil
}

func writeKeyringDoc(path string, doc *keyringDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode keyring: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}
