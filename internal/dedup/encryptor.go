package dedup

import "io"

// Encryptor protects audit-log snapshots and reports before they leave
// the host. Encryption needs only the public key; decryption needs the
// private key, which stays locked behind a passphrase until Unlock.
type Encryptor interface {
	// Setup generates a key pair and protects the private key with passphrase.
	Setup(passphrase string) error

	Encrypt(r io.Reader, w io.Writer) error

	// Unlock returns a context able to decrypt.
	Unlock(passphrase string) (DecryptionContext, error)

	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
