package auth

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// hashPersonalMessage applies the EIP-191 personal_sign envelope before
// hashing: keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func hashPersonalMessage(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message)) + message))
	return h.Sum(nil)
}

// RecoverAddress recovers the signing address from a 65-byte r||s||v
// signature over the EIP-191 hash of message. Accepts v as 0/1 or 27/28.
func RecoverAddress(message, signature string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(raw))
	}

	v := raw[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return "", fmt.Errorf("invalid recovery id %d", raw[64])
	}

	// RecoverCompact wants the recovery byte first.
	compact := make([]byte, 65)
	compact[0] = v
	copy(compact[1:], raw[:64])

	pubKey, _, err := ecdsa.RecoverCompact(compact, hashPersonalMessage(message))
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(pubKey.SerializeUncompressed()[1:])
	return "0x" + hex.EncodeToString(h.Sum(nil)[12:]), nil
}
