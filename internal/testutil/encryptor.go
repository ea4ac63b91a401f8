package testutil

import (
	"dedupe-go/internal/dedup"
	"dedupe-go/internal/encryption"
)

// NewTestEncryptor creates a reversible encryptor unlocked by the empty
// passphrase.
func NewTestEncryptor() dedup.Encryptor {
	return encryption.NewTestEncryptor()
}
