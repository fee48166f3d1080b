package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Code alphabet avoids ambiguous characters (0/O, 1/I/L) since codes are
// read off printed cards.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	codeLength   = 16
	suffixLength = 4
)

// generateVoucherCode returns a cryptographically random bearer code, its
// SHA-256 hash for storage, and the short display suffix.
func generateVoucherCode() (code, hash, suffix string, err error) {
	buf := make([]byte, codeLength)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("failed to generate voucher code: %w", err)
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}

	code = string(buf)
	hash = hashVoucherCode(code)
	suffix = code[len(code)-suffixLength:]
	return code, hash, suffix, nil
}

func hashVoucherCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
