package validation

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrLocationIDInvalid is returned when a location id is not a positive integer.
var ErrLocationIDInvalid = errors.New("location id must be a positive integer")

// ErrMessageTooLong is returned when an operator message exceeds the maximum length.
var ErrMessageTooLong = errors.New("message too long")

// ErrMessageInvalidChars is returned when an operator message contains control characters.
var ErrMessageInvalidChars = errors.New("message contains invalid characters")

// ErrJobNameInvalid is returned for job names outside [a-z0-9-].
var ErrJobNameInvalid = errors.New("invalid job name")

// DefaultMessageMaxLen bounds operator messages in runes.
const DefaultMessageMaxLen = 1000

// ParseLocationID trims the path segment and parses it as a positive int64.
// Returns an error suitable for 400 INVALID_LOCATION_ID responses.
func ParseLocationID(input string) (int64, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, ErrLocationIDInvalid
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrLocationIDInvalid
	}
	return id, nil
}

// ValidateMessage trims an operator message and enforces maxLen (in runes; <= 0 uses
// DefaultMessageMaxLen). Newlines and tabs are allowed, other control characters are not.
// An empty message is valid; the caller substitutes a default body.
func ValidateMessage(input string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMessageMaxLen
	}
	s := strings.TrimSpace(input)
	if !utf8.ValidString(s) {
		return "", ErrMessageInvalidChars
	}
	if utf8.RuneCountInString(s) > maxLen {
		return "", ErrMessageTooLong
	}
	for _, c := range s {
		if unicode.IsControl(c) && c != '\n' && c != '\t' && c != '\r' {
			return "", ErrMessageInvalidChars
		}
	}
	return s, nil
}

// ValidateJobName accepts lowercase letters, digits and hyphens.
func ValidateJobName(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrJobNameInvalid
	}
	for _, c := range s {
		if !isAllowedJobRune(c) {
			return "", ErrJobNameInvalid
		}
	}
	return s, nil
}

func isAllowedJobRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
}
