package encryption

import (
	"bytes"
	"testing"

	"dedupe-go/internal/config"
)

func TestTestEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	e := NewTestEncryptor()
	if !e.IsConfigured() {
		t.Fatal("IsConfigured() = false")
	}
	if err := e.Setup("pw"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	input := []byte("audit snapshot")
	var sealed bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(input), &sealed); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal(sealed.Bytes(), input) {
		t.Error("encrypted output equals plaintext")
	}

	if _, err := e.Unlock("nope"); err == nil {
		t.Error("Unlock() with wrong passphrase succeeded")
	}
	dc, err := e.Unlock("pw")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var plain bytes.Buffer
	if err := dc.Decrypt(&sealed, &plain); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(plain.Bytes(), input) {
		t.Errorf("Decrypt() = %q, want %q", plain.Bytes(), input)
	}
}

func TestTestEncryptor_DecryptRejectsForeignData(t *testing.T) {
	t.Parallel()
	dc, err := NewTestEncryptor().Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var out bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader([]byte("plain old bytes")), &out); err == nil {
		t.Error("Decrypt() accepted data without the header")
	}
	if err := dc.Decrypt(bytes.NewReader([]byte("DD")), &out); err == nil {
		t.Error("Decrypt() accepted a truncated header")
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		typ     string
		wantNil bool
		wantErr bool
	}{
		{typ: "none", wantNil: true},
		{typ: "", wantNil: true},
		{typ: "age"},
		{typ: "test"},
		{typ: "rot13", wantNil: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			enc, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if (enc == nil) != tt.wantNil {
				t.Errorf("encryptor = %v, wantNil %v", enc, tt.wantNil)
			}
		})
	}
}
