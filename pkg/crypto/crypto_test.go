package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func mustSalt(t *testing.T) []byte {
	t.Helper()
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	return salt
}

func mustKey(t *testing.T) *Key {
	t.Helper()
	k, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return k
}

// TestDeriveKey tests the Argon2id key derivation function
func TestDeriveKey(t *testing.T) {
	password := []byte("test-password-123")
	salt := mustSalt(t)

	key, err := DeriveKey(password, salt)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if len(key.Bytes()) != KeyLength {
		t.Errorf("DeriveKey() returned key of length %d, want %d", len(key.Bytes()), KeyLength)
	}

	// Same password + salt produces same key
	key2, err := DeriveKey(password, salt)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if !key.Equal(key2) {
		t.Error("DeriveKey() with same inputs should produce identical keys")
	}

	// Different password produces different key
	differentKey, err := DeriveKey([]byte("different-password"), salt)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if key.Equal(differentKey) {
		t.Error("DeriveKey() with different password should produce different key")
	}

	// Different salt produces different key
	differentKey, err = DeriveKey(password, mustSalt(t))
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if key.Equal(differentKey) {
		t.Error("DeriveKey() with different salt should produce different key")
	}
}

// TestDeriveKeyParameters pins the Argon2id parameters; changing them breaks existing vaults.
func TestDeriveKeyParameters(t *testing.T) {
	if Argon2Memory != 64*1024 {
		t.Errorf("Argon2Memory = %d, want %d (64MB)", Argon2Memory, 64*1024)
	}
	if Argon2Time != 3 {
		t.Errorf("Argon2Time = %d, want 3", Argon2Time)
	}
	if Argon2Threads != 4 {
		t.Errorf("Argon2Threads = %d, want 4", Argon2Threads)
	}
	if KeyLength != 32 {
		t.Errorf("KeyLength = %d, want 32 (256-bit)", KeyLength)
	}
	if SaltLength != 32 {
		t.Errorf("SaltLength = %d, want 32", SaltLength)
	}
}

func TestDeriveKeyInvalidSalt(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33} {
		_, err := DeriveKey([]byte("password"), make([]byte, n))
		if !errors.Is(err, ErrInvalidSaltLength) {
			t.Errorf("DeriveKey() with %d-byte salt error = %v, want ErrInvalidSaltLength", n, err)
		}
	}
}

func TestDeriveKeyUnusualPasswords(t *testing.T) {
	salt := mustSalt(t)
	tests := []struct {
		name     string
		password []byte
	}{
		{"empty", []byte{}},
		{"unicode", []byte("パスワード🔐")},
		{"long", bytes.Repeat([]byte("a"), 10000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeriveKey(tt.password, salt); err != nil {
				t.Errorf("DeriveKey() error = %v", err)
			}
		})
	}
}

func TestGenerateSalt(t *testing.T) {
	s1 := mustSalt(t)
	s2 := mustSalt(t)
	if len(s1) != SaltLength {
		t.Errorf("GenerateSalt() length = %d, want %d", len(s1), SaltLength)
	}
	if bytes.Equal(s1, s2) {
		t.Error("GenerateSalt() returned identical salts")
	}
}

func TestKeyLifecycle(t *testing.T) {
	k1 := mustKey(t)
	k2 := mustKey(t)
	if k1.Equal(k2) {
		t.Error("GenerateKey() returned identical keys")
	}

	clone := k1.Clone()
	if !clone.Equal(k1) {
		t.Error("Clone() should equal the original")
	}

	k1.Wipe()
	if !k1.IsWiped() {
		t.Error("IsWiped() = false after Wipe")
	}
	if !bytes.Equal(k1.Bytes(), make([]byte, KeyLength)) {
		t.Error("Wipe() did not zero key bytes")
	}
	if clone.IsWiped() || bytes.Equal(clone.Bytes(), make([]byte, KeyLength)) {
		t.Error("wiping the original must not affect its clone")
	}

	// Double wipe is a no-op
	k1.Wipe()

	if _, err := Encrypt([]byte("x"), k1); !errors.Is(err, ErrKeyWiped) {
		t.Errorf("Encrypt() with wiped key error = %v, want ErrKeyWiped", err)
	}
}

func TestKeyFromBytes(t *testing.T) {
	src := bytes.Repeat([]byte{0xAB}, KeyLength)
	k, err := KeyFromBytes(src)
	if err != nil {
		t.Fatalf("KeyFromBytes() error = %v", err)
	}
	if !bytes.Equal(k.Bytes(), bytes.Repeat([]byte{0xAB}, KeyLength)) {
		t.Error("KeyFromBytes() did not copy the key material")
	}
	if !bytes.Equal(src, make([]byte, KeyLength)) {
		t.Error("KeyFromBytes() did not wipe its source")
	}

	if _, err := KeyFromBytes(make([]byte, 16)); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("KeyFromBytes() short input error = %v, want ErrInvalidKeyLength", err)
	}
}

// TestSecureWipe verifies that SecureWipe zeros all bytes
func TestSecureWipe(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty slice", []byte{}},
		{"single byte", []byte{0xFF}},
		{"key-sized", bytes.Repeat([]byte{0x42}, 32)},
		{"large data", bytes.Repeat([]byte{0x55}, 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, len(tt.data))
			copy(data, tt.data)

			SecureWipe(data)

			for i, b := range data {
				if b != 0 {
					t.Errorf("SecureWipe() byte at index %d = %x, want 0", i, b)
				}
			}
		})
	}
}

func TestSecureWipeNil(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("SecureWipe(nil) panicked: %v", r)
		}
	}()
	SecureWipe(nil)
}
