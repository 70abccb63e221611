package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeEventID computes a deterministic event id from its ledger log position.
// Formula: SHA256(lower(tx_hash)|log_index)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(txHash string, logIndex uint32) string {
	data := fmt.Sprintf("%s|%d",
		strings.ToLower(strings.TrimSpace(txHash)),
		logIndex,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// SplitSourceID splits an indexer row id of the form "<tx_hash>-<log_index>"
// (the subgraph convention) into its ledger position.
func SplitSourceID(sourceID string) (txHash string, logIndex uint32, err error) {
	i := strings.LastIndex(sourceID, "-")
	if i <= 0 || i == len(sourceID)-1 {
		return "", 0, fmt.Errorf("malformed source id %q", sourceID)
	}
	if _, err := fmt.Sscanf(sourceID[i+1:], "%d", &logIndex); err != nil {
		return "", 0, fmt.Errorf("malformed log index in source id %q: %w", sourceID, err)
	}
	return strings.ToLower(sourceID[:i]), logIndex, nil
}

// ParseSourceID returns the event id of an indexer row id.
func ParseSourceID(sourceID string) (string, error) {
	tx, logIndex, err := SplitSourceID(sourceID)
	if err != nil {
		return "", err
	}
	return ComputeEventID(tx, logIndex), nil
}
