// Package ethsig implements secp256k1 signature parsing and signer recovery
// for registry authorizations.
package ethsig

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSignatureLength = errors.New("ethsig: signature must be 65 bytes")
	ErrInvalidSignature       = errors.New("ethsig: malformed signature")
	ErrWrongSigner            = errors.New("ethsig: recovered address does not match expected signer")
)

// SignatureLength is the raw byte length of an r||s||v signature.
const SignatureLength = 65

// Signature is a fixed-layout secp256k1 signature: 32-byte r, 32-byte s,
// 1-byte recovery id v.
type Signature struct {
	R [32]byte
	S [32]byte
	V byte
}

// ParseSignature decomposes a raw 65-byte blob into its r/s/v components.
// Fails with ErrInvalidSignatureLength for any other length.
func ParseSignature(raw []byte) (Signature, error) {
	if len(raw) != SignatureLength {
		return Signature{}, fmt.Errorf("%w: got %d", ErrInvalidSignatureLength, len(raw))
	}

	var sig Signature
	copy(sig.R[:], raw[0:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64]
	return sig, nil
}

// ParseSignatureHex decodes a hex-encoded signature (with or without 0x prefix).
func ParseSignatureHex(s string) (Signature, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ParseSignature(raw)
}

// Bytes returns the signature in r||s||v wire layout.
func (s Signature) Bytes() []byte {
	raw := make([]byte, SignatureLength)
	copy(raw[0:32], s.R[:])
	copy(raw[32:64], s.S[:])
	raw[64] = s.V
	return raw
}

// Hex returns the 0x-prefixed hex encoding of the signature.
func (s Signature) Hex() string {
	return "0x" + hex.EncodeToString(s.Bytes())
}

// HashMessage creates an Ethereum signed message hash.
// This prefixes the message with "\x19Ethereum Signed Message:\n{len}" as per
// EIP-191, so signatures cannot be replayed in unrelated signing contexts.
func HashMessage(message string) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return crypto.Keccak256([]byte(prefix + message))
}

// RecoverAddress recovers the signing address from a 32-byte message hash and
// a parsed signature. The returned address is lowercase hex with 0x prefix.
func RecoverAddress(hash []byte, sig Signature) (string, error) {
	raw := sig.Bytes()

	// Ethereum signatures have v = 27 or 28, but Ecrecover expects 0 or 1
	if raw[64] >= 27 {
		raw[64] -= 27
	}

	pubKeyBytes, err := crypto.Ecrecover(hash, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	pubKey, err := crypto.UnmarshalPubkey(pubKeyBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pubKey).Hex()), nil
}

// VerifySigner checks that sig over hash was produced by expected.
// Returns ErrWrongSigner when recovery succeeds but yields another address.
func VerifySigner(hash []byte, sig Signature, expected string) error {
	recovered, err := RecoverAddress(hash, sig)
	if err != nil {
		return err
	}

	if !strings.EqualFold(recovered, expected) {
		return fmt.Errorf("%w: expected %s, got %s", ErrWrongSigner, strings.ToLower(expected), recovered)
	}

	return nil
}
