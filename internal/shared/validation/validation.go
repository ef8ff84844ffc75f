package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input limits
const (
	MaxIDLength       = 128
	MaxNameLength     = 256
	MaxMessageLength  = 16 * 1024
	MaxStackLength    = 64 * 1024
	MaxAttributeCount = 64
	MaxAttributeKey   = 128
	MaxAttributeDepth = 8
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid input")

// IDPattern allows alphanumeric, dots, colons, hyphens and underscores.
// Covers generated IDs as well as UUIDs and W3C hex IDs sent by clients.
var IDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// String validates a string field with length and content checks
func String(value, field string, maxLen int, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%w: %s is required", ErrInvalid, field)
		}
		return nil
	}

	if utf8.RuneCountInString(value) > maxLen {
		return fmt.Errorf("%w: %s must not exceed %d characters", ErrInvalid, field, maxLen)
	}

	// Null bytes break log sinks downstream
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%w: %s contains invalid characters", ErrInvalid, field)
	}

	return nil
}

// ID validates a trace or span identifier
func ID(id, field string, required bool) error {
	if err := String(id, field, MaxIDLength, required); err != nil {
		return err
	}
	if id != "" && !IDPattern.MatchString(id) {
		return fmt.Errorf("%w: %s contains invalid characters (only alphanumeric, dots, colons, hyphens, and underscores allowed)", ErrInvalid, field)
	}
	return nil
}

// Attributes validates a tag or data map: entry count, key length and
// nesting depth
func Attributes(attrs map[string]any, field string) error {
	if len(attrs) > MaxAttributeCount {
		return fmt.Errorf("%w: %s has %d entries, maximum is %d", ErrInvalid, field, len(attrs), MaxAttributeCount)
	}
	for k := range attrs {
		if k == "" {
			return fmt.Errorf("%w: %s contains an empty key", ErrInvalid, field)
		}
		if len(k) > MaxAttributeKey {
			return fmt.Errorf("%w: %s key %.32q... exceeds %d bytes", ErrInvalid, field, k, MaxAttributeKey)
		}
	}
	if err := checkDepth(attrs, 0, MaxAttributeDepth); err != nil {
		return fmt.Errorf("%w: %s %v", ErrInvalid, field, err)
	}
	return nil
}

func checkDepth(data any, depth, maxDepth int) error {
	if depth > maxDepth {
		return fmt.Errorf("nesting depth exceeds maximum %d", maxDepth)
	}

	switch v := data.(type) {
	case map[string]any:
		for _, value := range v {
			if err := checkDepth(value, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case []any:
		for _, value := range v {
			if err := checkDepth(value, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}

	return nil
}

// First returns the first non-nil error
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
