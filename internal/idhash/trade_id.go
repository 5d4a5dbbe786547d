package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(signature|wallet|token|side)
// Returns hex-encoded hash (64 characters).
//
// The same trade delivered twice (live and again in a subscription snapshot)
// hashes to the same ID, so stores reject the second copy as a duplicate.
func ComputeTradeID(
	signature string,
	walletAddress string,
	tokenAddress string,
	side string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		signature,
		walletAddress,
		tokenAddress,
		side,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
