// Package address normalizes 20-byte ledger account addresses.
package address

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ErrInvalid is returned for strings that are not 0x-prefixed 20-byte hex.
var ErrInvalid = errors.New("invalid address")

// Normalize returns the lower-case 0x form used as the identity of a user
// everywhere in the derivation core.
func Normalize(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", ErrInvalid
	}
	body := strings.ToLower(s[2:])
	if _, err := hex.DecodeString(body); err != nil {
		return "", ErrInvalid
	}
	return "0x" + body, nil
}

// Checksum renders an address in EIP-55 mixed-case form for display.
func Checksum(s string) (string, error) {
	n, err := Normalize(s)
	if err != nil {
		return "", err
	}
	body := n[2:]

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(body))
	digest := h.Sum(nil)

	out := []byte(body)
	for i := range out {
		if out[i] < 'a' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] -= 'a' - 'A'
		}
	}
	return "0x" + string(out), nil
}
