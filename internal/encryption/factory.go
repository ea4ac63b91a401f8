package encryption

import (
	"fmt"

	"dedupe-go/internal/config"
	"dedupe-go/internal/dedup"
)

// NewEncryptorFromConfig returns the configured Encryptor, or nil when
// encryption is disabled.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (dedup.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
