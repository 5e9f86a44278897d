package hud

import (
	"regexp"
	"strconv"
	"strings"
)

// Keywords the overlay prints.
const (
	KeywordRating = "rating"
	KeywordClosed = "closed"
)

// Numerals are matched with explicit non-digit boundaries so a long run of
// digits is never read as a shorter numeral.
var (
	ratingPattern    = regexp.MustCompile(`(?:^|\D)(\d{3,4})(?:\D|$)`)
	regionPattern    = regexp.MustCompile(`rating on (\S+)`)
	tokenPairPattern = regexp.MustCompile(`(?:^|\D)(\d{2,8})\s+(\d{2,8})(?:\D|$)`)
	timePattern      = regexp.MustCompile(`(?:^|\D)(\d{0,2}):(\d{0,2})(?:\D|$)`)
)

// HasKeyword reports whether kw occurs anywhere in text.
func HasKeyword(text, kw string) bool {
	return strings.Contains(text, kw)
}

// FindRating returns the first 3-4 digit numeral, or 0.
func FindRating(text string) int {
	m := ratingPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	return ParseIntOrZero(m[1])
}

// FindRegion returns the uppercased word after "rating on ", or NoRegion.
func FindRegion(text string) string {
	m := regionPattern.FindStringSubmatch(text)
	if m == nil {
		return NoRegion
	}
	return strings.ToUpper(m[1])
}

// FindTokenPair returns the first two whitespace-separated 2-8 digit numerals.
func FindTokenPair(text string) (first, second string, ok bool) {
	m := tokenPairPattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// FindTimeToken returns the two sides of the first MM:SS token. Either side
// may be empty.
func FindTimeToken(text string) (minutes, seconds string, ok bool) {
	m := timePattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// ParseIntOrZero parses a non-negative decimal, returning 0 on any failure.
func ParseIntOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
