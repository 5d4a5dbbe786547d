package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of a decoded Solana address.
const PublicKeyLength = 32

// WrappedSOLMint is the mint address of wrapped SOL.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// ErrInvalidAddress is returned when a string is not a base58-encoded 32-byte key.
var ErrInvalidAddress = errors.New("invalid solana address")

// DecodeAddress decodes a base58 address into its 32 raw bytes.
func DecodeAddress(address string) ([]byte, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	decoded, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(decoded) != PublicKeyLength {
		return nil, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(decoded))
	}
	return decoded, nil
}

// ValidateAddress checks that address is a base58-encoded 32-byte key.
func ValidateAddress(address string) error {
	_, err := DecodeAddress(address)
	return err
}

// IsValidAddress is the boolean form of ValidateAddress.
func IsValidAddress(address string) bool {
	return ValidateAddress(address) == nil
}

// IsOnCurve reports whether address is a valid ed25519 point.
// Wallets are on the curve; program-derived addresses are not.
func IsOnCurve(address string) bool {
	decoded, err := DecodeAddress(address)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
