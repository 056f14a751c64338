package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateSessionID returns an upper-case hex identifier for a scan session.
func GenerateSessionID(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}
