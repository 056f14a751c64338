package scan

import (
	"regexp"
	"strings"

	"ticket-checkin/internal/status"
)

var (
	// codePattern matches a normalized ticket code, e.g. NTK-AB12CD34.
	codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{3,63}$`)

	// verifyPathPattern recognizes codes embedded in a verification URL
	// path, the form printed inside ticket QR payloads.
	verifyPathPattern = regexp.MustCompile(`/verify/([A-Za-z0-9-]+)`)
)

// NormalizeCode turns operator-typed input into a canonical ticket code:
// trimmed and upper-cased. Input that is empty after trimming is an error.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", status.ErrEmptyCode
	}
	return code, nil
}

// ExtractCode pulls a ticket code out of a decoded payload. The payload is
// either the bare code or a URL carrying the /verify/<code> marker.
func ExtractCode(payload string) (string, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return "", status.ErrNoCodeInPayload
	}

	if m := verifyPathPattern.FindStringSubmatch(trimmed); m != nil {
		return NormalizeCode(m[1])
	}

	code, err := NormalizeCode(trimmed)
	if err != nil {
		return "", err
	}
	if !codePattern.MatchString(code) {
		return "", status.ErrNoCodeInPayload
	}
	return code, nil
}
