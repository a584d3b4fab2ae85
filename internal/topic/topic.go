// Package topic validates MQTT topic names and filters and matches names
// against filters.
package topic

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxLength is the longest topic the protocol can encode (2-byte length prefix).
const MaxLength = 65535

// Wildcards.
const (
	SingleLevel = "+"
	MultiLevel  = "#"
	Separator   = "/"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("topic: invalid")

// ValidateName checks a topic used for PUBLISH: non-empty, no wildcards,
// no NUL bytes, valid UTF-8, within MaxLength.
func ValidateName(name string) error {
	if err := validateCommon(name); err != nil {
		return err
	}
	if strings.ContainsAny(name, "+#") {
		return fmt.Errorf("%w: %q contains a wildcard, not allowed in a topic name", ErrInvalid, name)
	}
	return nil
}

// ValidateFilter checks a subscription filter: wildcards must occupy a
// whole level and '#' must be the last level.
func ValidateFilter(filter string) error {
	if err := validateCommon(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, Separator)
	for i, level := range levels {
		switch {
		case level == MultiLevel:
			if i != len(levels)-1 {
				return fmt.Errorf("%w: %q has '#' before the last level", ErrInvalid, filter)
			}
		case level == SingleLevel:
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: %q has a wildcard that is not a whole level", ErrInvalid, filter)
		}
	}
	return nil
}

func validateCommon(s string) error {
	if s == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalid)
	}
	if len(s) > MaxLength {
		return fmt.Errorf("%w: length %d exceeds %d", ErrInvalid, len(s), MaxLength)
	}
	if strings.ContainsRune(s, 0) {
		return fmt.Errorf("%w: contains a NUL byte", ErrInvalid)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalid)
	}
	return nil
}

// Match reports whether name matches filter.
//
// Filters starting with a wildcard never match names starting with '$'.
func Match(filter, name string) bool {
	if strings.HasPrefix(name, "$") && (strings.HasPrefix(filter, SingleLevel) || strings.HasPrefix(filter, MultiLevel)) {
		return false
	}

	fl := strings.Split(filter, Separator)
	nl := strings.Split(name, Separator)

	for i, level := range fl {
		if level == MultiLevel {
			return true
		}
		if i >= len(nl) {
			return false
		}
		if level != SingleLevel && level != nl[i] {
			return false
		}
	}
	return len(fl) == len(nl)
}
