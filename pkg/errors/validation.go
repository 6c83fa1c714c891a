package errors

import (
	"strings"
	"unicode"
)

// ValidateUploadName validates an uploaded filename for safety before it
// is used as a classifier hint or storage name component.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters or null bytes
//   - No path separators or traversal sequences
//   - Maximum length of 256 characters
func ValidateUploadName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "filename cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidInput, "filename too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "filename contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\\",   // Backslash (Windows path)
		"\x00", // Null byte
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidInput, "filename contains invalid characters: %q", pattern)
		}
	}

	return nil
}
