package jifdb

import (
	"fmt"
	"strings"
)

// ValidateName checks a collection name. Names must be non-blank and use
// only ASCII letters, digits, space, '.', ',', '_' and '-'. Path separators
// are never allowed, so a name cannot escape the database root.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is blank", ErrInvalidName)
	}

	for i, r := range name {
		if !nameRune(r) {
			return fmt.Errorf("%w: %q has disallowed character %q at offset %d", ErrInvalidName, name, r, i)
		}
	}

	return nil
}

func nameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '.', r == ',', r == '_', r == '-':
		return true
	default:
		return false
	}
}
