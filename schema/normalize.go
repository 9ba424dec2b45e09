package schema

import (
	"math"
	"strings"
	"unicode"
)

// NormalizeStreamerID validates and normalizes a streamer identifier.
// Allowed characters: A-Z, a-z, 0-9, '_'. Twitch logins are case-insensitive.
func NormalizeStreamerID(value string) (StreamerID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", ErrInvalidRequest
	}
	for _, r := range trimmed {
		if r == '_' {
			continue
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		return "", ErrInvalidRequest
	}
	return StreamerID(strings.ToLower(trimmed)), nil
}

// ClampScore bounds a score to [0,1]. NaN is rejected.
func ClampScore(score float64) (float64, bool) {
	if math.IsNaN(score) {
		return 0, false
	}
	return math.Max(0, math.Min(1, score)), true
}
