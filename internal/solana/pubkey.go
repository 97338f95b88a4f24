// Package solana provides address helpers for validating upstream payloads.
package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PumpFunProgram is the pump.fun bonding-curve program id.
const PumpFunProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// bondingCurveSeed is the PDA seed prefix used by the pump.fun program.
const bondingCurveSeed = "bonding-curve"

const pubkeyLen = 32

// DecodePubkey decodes a base58 public key, enforcing the 32-byte length.
func DecodePubkey(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode pubkey: %w", err)
	}
	if len(b) != pubkeyLen {
		return nil, fmt.Errorf("pubkey length %d, want %d", len(b), pubkeyLen)
	}
	return b, nil
}

// ValidPubkey reports whether s decodes to a 32-byte base58 public key.
func ValidPubkey(s string) bool {
	_, err := DecodePubkey(s)
	return err == nil
}

// IsOnCurve reports whether a 32-byte point lies on the ed25519 curve.
// Program derived addresses are off-curve by construction.
func IsOnCurve(point []byte) bool {
	if len(point) != pubkeyLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// DerivePDA derives a Program Derived Address using the Solana algorithm:
// concatenate seeds with a bump byte, append the program id and the
// "ProgramDerivedAddress" marker, SHA256, and keep the first bump whose hash
// is off-curve.
func DerivePDA(seeds [][]byte, programID []byte) (string, error) {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 64)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !IsOnCurve(hash[:]) {
			return base58.Encode(hash[:]), nil
		}
	}

	return "", fmt.Errorf("no valid bump seed found")
}

// BondingCurveAddress returns the pump.fun bonding-curve PDA for a mint.
// Creation events carry this address as bondingCurveKey; a mismatch flags a
// payload that did not originate from the expected program.
func BondingCurveAddress(mint string) (string, error) {
	m, err := DecodePubkey(mint)
	if err != nil {
		return "", fmt.Errorf("mint %q: %w", mint, err)
	}

	program, err := DecodePubkey(PumpFunProgram)
	if err != nil {
		return "", err
	}

	return DerivePDA([][]byte{[]byte(bondingCurveSeed), m}, program)
}
