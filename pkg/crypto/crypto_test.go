package crypto

import (
	"bytes"
	"math/big"
	"testing"
)

func TestDHSharedSecretAgrees(t *testing.T) {
	alice, err := DHGenerateKeyPair()
	if err != nil {
		t.Fatalf("DHGenerateKeyPair: %v", err)
	}
	bob, err := DHGenerateKeyPair()
	if err != nil {
		t.Fatalf("DHGenerateKeyPair: %v", err)
	}

	aliceSecret, err := DHSharedSecret(alice, bob.DHPublicKey())
	if err != nil {
		t.Fatalf("DHSharedSecret (alice): %v", err)
	}
	bobSecret, err := DHSharedSecret(bob, alice.DHPublicKey())
	if err != nil {
		t.Fatalf("DHSharedSecret (bob): %v", err)
	}

	if aliceSecret.Cmp(bobSecret) != 0 {
		t.Fatalf("shared secrets disagree: %x != %x", aliceSecret, bobSecret)
	}
}

func TestDHValidatePublicValueRejectsOutOfRange(t *testing.T) {
	if err := DHValidatePublicValue(nil); err == nil {
		t.Fatal("expected error for nil public value")
	}
	if err := DHValidatePublicValue(big.NewInt(1)); err == nil {
		t.Fatal("expected error for y=1")
	}
	if err := DHValidatePublicValue(DHPrime()); err == nil {
		t.Fatal("expected error for y=p")
	}
}

func TestAESCTRRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, AESCTRKeySize)
	cipherA, err := NewAESCTR(key)
	if err != nil {
		t.Fatalf("NewAESCTR: %v", err)
	}

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	counter := TopHalfCounter(7)

	ciphertext, err := cipherA.Encrypt(counter, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext equals plaintext")
	}

	decrypted, err := cipherA.Decrypt(counter, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", decrypted, plaintext)
	}
}

func TestAESCTRRejectsBadKeySize(t *testing.T) {
	if _, err := NewAESCTR([]byte{1, 2, 3}); err != ErrAESCTRInvalidKey {
		t.Fatalf("expected ErrAESCTRInvalidKey, got %v", err)
	}
}

func TestHMACSHA1Deterministic(t *testing.T) {
	key := []byte("session-mac-key")
	msg := []byte("authenticated data message body")

	mac1 := HMACSHA1(key, msg)
	mac2 := HMACSHA1(key, msg)
	if mac1 != mac2 {
		t.Fatal("HMACSHA1 not deterministic")
	}
	if !MACEqual(mac1[:], mac2[:]) {
		t.Fatal("MACEqual false for identical MACs")
	}

	other := HMACSHA1([]byte("different-key"), msg)
	if MACEqual(mac1[:], other[:]) {
		t.Fatal("MACEqual true for differing MACs")
	}
}

func TestDeriveAKESecretsSizesAndDeterminism(t *testing.T) {
	secret := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	c1, err := DeriveAKESecrets(secret)
	if err != nil {
		t.Fatalf("DeriveAKESecrets: %v", err)
	}
	c2, err := DeriveAKESecrets(secret)
	if err != nil {
		t.Fatalf("DeriveAKESecrets: %v", err)
	}
	if c1.C != c2.C || c1.M1 != c2.M1 || c1.M2p != c2.M2p {
		t.Fatal("DeriveAKESecrets not deterministic")
	}
	if c1.C == c1.Cp {
		t.Fatal("c and cp must differ")
	}
}

func TestSignAndVerify(t *testing.T) {
	kp, err := GenerateLongTermKeyPair()
	if err != nil {
		t.Fatalf("GenerateLongTermKeyPair: %v", err)
	}

	transcript := []byte("AKE transcript to authenticate")
	sig := kp.Sign(transcript)

	if !VerifySignature(kp.Public, transcript, sig) {
		t.Fatal("VerifySignature failed on valid signature")
	}
	if VerifySignature(kp.Public, []byte("tampered transcript"), sig) {
		t.Fatal("VerifySignature accepted tampered transcript")
	}
}
