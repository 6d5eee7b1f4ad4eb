package ethsig

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestParseSignatureLength(t *testing.T) {
	for _, n := range []int{0, 1, 64, 66, 130} {
		_, err := ParseSignature(make([]byte, n))
		if !errors.Is(err, ErrInvalidSignatureLength) {
			t.Errorf("ParseSignature with %d bytes: expected ErrInvalidSignatureLength, got %v", n, err)
		}
	}

	raw := make([]byte, SignatureLength)
	for i := range raw {
		raw[i] = byte(i)
	}
	sig, err := ParseSignature(raw)
	if err != nil {
		t.Fatalf("ParseSignature failed: %v", err)
	}
	if !bytes.Equal(sig.Bytes(), raw) {
		t.Error("Bytes() should round-trip the raw layout")
	}
	if sig.V != raw[64] {
		t.Errorf("Expected v=%d, got %d", raw[64], sig.V)
	}
}

func TestParseSignatureHex(t *testing.T) {
	_, err := ParseSignatureHex("not-hex")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for invalid hex, got %v", err)
	}

	_, err = ParseSignatureHex("0xabcd")
	if !errors.Is(err, ErrInvalidSignatureLength) {
		t.Errorf("Expected ErrInvalidSignatureLength for short hex, got %v", err)
	}
}

func TestRecoverAddress(t *testing.T) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	address := strings.ToLower(crypto.PubkeyToAddress(privateKey.PublicKey).Hex())

	hash := HashMessage("AgentTrust|feedback|1|0|hash1")
	raw, err := crypto.Sign(hash, privateKey)
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}

	// Ethereum signatures carry v = 27 or 28
	raw[64] += 27

	sig, err := ParseSignature(raw)
	if err != nil {
		t.Fatalf("ParseSignature failed: %v", err)
	}

	recovered, err := RecoverAddress(hash, sig)
	if err != nil {
		t.Fatalf("RecoverAddress failed: %v", err)
	}
	if recovered != address {
		t.Errorf("Expected %s, got %s", address, recovered)
	}
}

func TestRecoverAddressRawV(t *testing.T) {
	// Signatures straight out of crypto.Sign carry v = 0 or 1; recovery
	// must accept both conventions.
	privateKey, _ := crypto.GenerateKey()
	address := strings.ToLower(crypto.PubkeyToAddress(privateKey.PublicKey).Hex())

	hash := HashMessage("test message")
	raw, _ := crypto.Sign(hash, privateKey)

	sig, err := ParseSignature(raw)
	if err != nil {
		t.Fatalf("ParseSignature failed: %v", err)
	}

	recovered, err := RecoverAddress(hash, sig)
	if err != nil {
		t.Fatalf("RecoverAddress failed: %v", err)
	}
	if recovered != address {
		t.Errorf("Expected %s, got %s", address, recovered)
	}
}

func TestVerifySigner(t *testing.T) {
	privateKey, _ := crypto.GenerateKey()
	address := crypto.PubkeyToAddress(privateKey.PublicKey).Hex()

	hash := HashMessage("AgentTrust|feedback|1|0|hash1")
	raw, _ := crypto.Sign(hash, privateKey)
	raw[64] += 27
	sig, _ := ParseSignature(raw)

	if err := VerifySigner(hash, sig, address); err != nil {
		t.Errorf("VerifySigner failed for valid signature: %v", err)
	}

	// Mixed case should not matter
	if err := VerifySigner(hash, sig, strings.ToUpper(address)); err != nil {
		t.Errorf("VerifySigner should compare case-insensitively: %v", err)
	}
}

func TestVerifySignerWrongSigner(t *testing.T) {
	privateKey, _ := crypto.GenerateKey()
	otherKey, _ := crypto.GenerateKey()
	otherAddr := crypto.PubkeyToAddress(otherKey.PublicKey).Hex()

	hash := HashMessage("AgentTrust|feedback|1|0|hash1")
	raw, _ := crypto.Sign(hash, privateKey)
	raw[64] += 27
	sig, _ := ParseSignature(raw)

	err := VerifySigner(hash, sig, otherAddr)
	if !errors.Is(err, ErrWrongSigner) {
		t.Errorf("Expected ErrWrongSigner, got %v", err)
	}
}

func TestVerifySignerTamperedHash(t *testing.T) {
	// A signature over one message must not verify against another:
	// recovery yields a different address, so the signer check fails.
	privateKey, _ := crypto.GenerateKey()
	address := crypto.PubkeyToAddress(privateKey.PublicKey).Hex()

	hash := HashMessage("AgentTrust|feedback|1|0|hash1")
	raw, _ := crypto.Sign(hash, privateKey)
	raw[64] += 27
	sig, _ := ParseSignature(raw)

	tampered := HashMessage("AgentTrust|feedback|1|0|hash2")
	err := VerifySigner(tampered, sig, address)
	if err == nil {
		t.Error("Expected verification to fail for tampered message")
	}
}

func TestHashMessageDomainSeparation(t *testing.T) {
	h1 := HashMessage("AgentTrust|feedback|1|0|hash1")
	h2 := HashMessage("Other|feedback|1|0|hash1")
	if bytes.Equal(h1, h2) {
		t.Error("Different domains must produce different hashes")
	}
	if len(h1) != 32 {
		t.Errorf("Expected 32-byte hash, got %d", len(h1))
	}
}
