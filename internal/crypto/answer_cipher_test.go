package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

// testKey returns a valid 32-byte key for use in tests.
func testKey() []byte {
	return bytes.Repeat([]byte("k"), 32)
}

func newTestCipher(t *testing.T) *AnswerCipher {
	t.Helper()
	c, err := NewAnswerCipher(testKey())
	if err != nil {
		t.Fatalf("NewAnswerCipher: %v", err)
	}
	return c
}

func TestNewAnswerCipher_KeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewAnswerCipher(make([]byte, n)); !errors.Is(err, ErrKeyLengthInvalid) {
			t.Errorf("NewAnswerCipher(len=%d) error = %v, want ErrKeyLengthInvalid", n, err)
		}
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	c := newTestCipher(t)
	plain := []byte(`{"kind":"text","text":"ITAR category XI"}`)

	sealed, err := c.Seal(plain, "a-1/q-7")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains([]byte(sealed), []byte("ITAR")) {
		t.Fatal("ciphertext leaks plaintext")
	}
	got, err := c.Open(sealed, "a-1/q-7")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("Open = %s, want %s", got, plain)
	}
}

func TestSeal_NonceIsRandom(t *testing.T) {
	c := newTestCipher(t)
	a, _ := c.Seal([]byte("same"), "x")
	b, _ := c.Seal([]byte("same"), "x")
	if a == b {
		t.Error("two seals of the same plaintext should differ")
	}
}

func TestOpen_WrongBindingFails(t *testing.T) {
	c := newTestCipher(t)
	sealed, _ := c.Seal([]byte("secret"), "a-1/q-1")
	if _, err := c.Open(sealed, "a-2/q-1"); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Open with other binding error = %v, want ErrDecryptionFailed", err)
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	c := newTestCipher(t)
	sealed, _ := c.Seal([]byte("secret"), "b")
	other, _ := NewAnswerCipher(bytes.Repeat([]byte("z"), 32))
	if _, err := other.Open(sealed, "b"); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Open with other key error = %v, want ErrDecryptionFailed", err)
	}
}

func TestOpen_Corrupted(t *testing.T) {
	c := newTestCipher(t)
	if _, err := c.Open("!!!not-base64!!!", "b"); !errors.Is(err, ErrCiphertextCorrupted) {
		t.Errorf("error = %v, want ErrCiphertextCorrupted", err)
	}
	short := base64.URLEncoding.EncodeToString([]byte("abc"))
	if _, err := c.Open(short, "b"); !errors.Is(err, ErrCiphertextCorrupted) {
		t.Errorf("error = %v, want ErrCiphertextCorrupted", err)
	}
}

func TestDeriveAnswerCipher(t *testing.T) {
	if _, err := DeriveAnswerCipher("pass", []byte("short"), 100000); !errors.Is(err, ErrSaltTooShort) {
		t.Errorf("error = %v, want ErrSaltTooShort", err)
	}
	salt := bytes.Repeat([]byte("s"), 16)
	c1, err := DeriveAnswerCipher("passphrase", salt, 0)
	if err != nil {
		t.Fatalf("DeriveAnswerCipher: %v", err)
	}
	c2, _ := DeriveAnswerCipher("passphrase", salt, 100000)
	sealed, _ := c1.Seal([]byte("x"), "b")
	if _, err := c2.Open(sealed, "b"); err != nil {
		t.Errorf("same passphrase and salt should derive the same key: %v", err)
	}
}

func TestParseKey(t *testing.T) {
	key, _ := GenerateKey()
	if got, err := ParseKey(hex.EncodeToString(key)); err != nil || !bytes.Equal(got, key) {
		t.Errorf("ParseKey(hex) = %x, %v", got, err)
	}
	if got, err := ParseKey(base64.StdEncoding.EncodeToString(key)); err != nil || !bytes.Equal(got, key) {
		t.Errorf("ParseKey(base64) = %x, %v", got, err)
	}
	if _, err := ParseKey("too-short"); !errors.Is(err, ErrKeyLengthInvalid) {
		t.Errorf("ParseKey(short) error = %v", err)
	}
}
