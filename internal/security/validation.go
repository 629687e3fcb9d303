package security

import (
	"crypto/subtle"
	"regexp"
	"strings"
	"unicode"

	apperrors "nse-agent/internal/errors"
)

// Validation patterns
var (
	// Symbol pattern: uppercase letters, numbers, and limited special chars
	symbolPattern = regexp.MustCompile(`^[A-Z0-9&-]{1,20}$`)

	// Signal id: scan timestamp, a dash, then the symbol
	signalIDPattern = regexp.MustCompile(`^\d{8}T\d{6}\.\d{3}-[A-Z0-9&-]{1,20}$`)

	// Token patterns for detection (not validation)
	tokenPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|access[_-]?token|auth[_-]?token|bearer)[=:\s]+["']?([A-Za-z0-9_\-\.]{8,})["']?`),
		regexp.MustCompile(`([A-Za-z0-9]{32,})`),
	}

	// Command and SQL injection patterns for free text
	injectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(union\s+select|drop\s+table|insert\s+into|delete\s+from)`),
		regexp.MustCompile(`[;$\x60]`),
	}
)

// ValidateSymbol validates an NSE trading symbol and returns it upper-cased.
func ValidateSymbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if symbol == "" {
		return "", apperrors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	}
	if !symbolPattern.MatchString(symbol) {
		return "", apperrors.NewValidationError("symbol", symbol, "invalid symbol format")
	}
	return symbol, nil
}

// ValidateSignalID checks the shape of a signal id taken from a URL.
func ValidateSignalID(id string) error {
	if !signalIDPattern.MatchString(id) {
		return apperrors.NewValidationError("signal_id", id, "invalid signal id")
	}
	return nil
}

// ValidateSearchQuery validates a free-text symbol search and returns the
// sanitized query.
func ValidateSearchQuery(q string) (string, error) {
	q = strings.TrimSpace(SanitizeText(q))
	if q == "" {
		return "", apperrors.NewValidationError("q", q, "query cannot be empty")
	}
	if len(q) > 64 {
		return "", apperrors.NewValidationError("q", q, "query too long (max 64 characters)")
	}
	for _, p := range injectionPatterns {
		if p.MatchString(q) {
			return "", apperrors.NewValidationError("q", q, "query contains invalid characters")
		}
	}
	return q, nil
}

// SanitizeText removes control characters from free-form text.
func SanitizeText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r >= 32 && r != 127 && (unicode.IsPrint(r) || r == ' ') {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// TokenMatches compares a presented bearer token with the expected one in
// constant time. An empty expected token never matches.
func TokenMatches(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// MaskSensitive masks tokens embedded in a string.
func MaskSensitive(input string) string {
	result := input
	for _, pattern := range tokenPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if len(match) > 8 {
				return match[:4] + strings.Repeat("*", len(match)-8) + match[len(match)-4:]
			}
			return strings.Repeat("*", len(match))
		})
	}
	return result
}

// MaskCredential masks a credential value for logging.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
