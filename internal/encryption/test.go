package encryption

import (
	"bytes"
	"fmt"
	"io"

	"dedupe-go/internal/dedup"
)

// testMagic marks output of TestEncryptor so that "encrypted" bytes never
// equal the plaintext.
var testMagic = []byte("DDPTEST\x00")

// TestEncryptor is a reversible stand-in for AgeEncryptor. It frames data
// with a fixed header and accepts only the passphrase it was set up with.
type TestEncryptor struct {
	passphrase string
	configured bool
}

// NewTestEncryptor creates a TestEncryptor that is already configured
// with an empty passphrase.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{configured: true}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	e.configured = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testMagic); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (dedup.DecryptionContext, error) {
	if passphrase != e.passphrase {
		return nil, fmt.Errorf("unlocking private key: wrong passphrase")
	}
	return testDecryptor{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return e.configured
}

type testDecryptor struct{}

func (testDecryptor) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(header, testMagic) {
		return fmt.Errorf("not produced by the test encryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

var _ dedup.Encryptor = (*TestEncryptor)(nil)
