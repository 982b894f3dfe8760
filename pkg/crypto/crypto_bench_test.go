package crypto_test

import (
	"crypto/rand"
	"testing"

	"github.com/forest6511/knot/pkg/crypto"
)

// BenchmarkDeriveKey measures Argon2id key derivation performance.
// Expected: well under a second on modern hardware with 64MB memory cost.
func BenchmarkDeriveKey(b *testing.B) {
	password := []byte("testpassword123!")
	salt, err := crypto.GenerateSalt()
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k, err := crypto.DeriveKey(password, salt)
		if err != nil {
			b.Fatal(err)
		}
		k.Wipe()
	}
}

// BenchmarkPhraseToKEK measures recovery phrase validation plus HKDF.
func BenchmarkPhraseToKEK(b *testing.B) {
	phrase, err := crypto.GenerateRecoveryPhrase()
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k, err := crypto.PhraseToKEK(phrase)
		if err != nil {
			b.Fatal(err)
		}
		k.Wipe()
	}
}

// BenchmarkWrapKey measures wrapping a DEK under a KEK.
func BenchmarkWrapKey(b *testing.B) {
	dek, err := crypto.GenerateKey()
	if err != nil {
		b.Fatal(err)
	}
	kek, err := crypto.GenerateKey()
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.WrapKey(dek, kek); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSecureWipe measures secure memory wiping performance.
func BenchmarkSecureWipe(b *testing.B) {
	data := make([]byte, 1024) // 1KB

	b.ReportAllocs()
	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		crypto.SecureWipe(data)
	}
}

// Benchmark encryption with various payload sizes to measure throughput.

func BenchmarkEncrypt1KB(b *testing.B) {
	benchmarkEncrypt(b, 1024)
}

func BenchmarkEncrypt10KB(b *testing.B) {
	benchmarkEncrypt(b, 10*1024)
}

func BenchmarkEncrypt100KB(b *testing.B) {
	benchmarkEncrypt(b, 100*1024)
}

func BenchmarkEncrypt1MB(b *testing.B) {
	benchmarkEncrypt(b, 1024*1024)
}

func benchmarkEncrypt(b *testing.B, size int) {
	b.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		b.Fatal(err)
	}
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.SetBytes(int64(size))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.Encrypt(data, key); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark decryption with various payload sizes to measure throughput.

func BenchmarkDecrypt1KB(b *testing.B) {
	benchmarkDecrypt(b, 1024)
}

func BenchmarkDecrypt10KB(b *testing.B) {
	benchmarkDecrypt(b, 10*1024)
}

func BenchmarkDecrypt100KB(b *testing.B) {
	benchmarkDecrypt(b, 100*1024)
}

func BenchmarkDecrypt1MB(b *testing.B) {
	benchmarkDecrypt(b, 1024*1024)
}

func benchmarkDecrypt(b *testing.B, size int) {
	b.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		b.Fatal(err)
	}
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		b.Fatal(err)
	}
	blob, err := crypto.Encrypt(data, key)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.SetBytes(int64(size))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.Decrypt(blob, key); err != nil {
			b.Fatal(err)
		}
	}
}
