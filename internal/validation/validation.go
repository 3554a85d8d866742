// Package validation checks names before they reach a storage medium.
package validation

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// MaxKeyLength bounds the length of a preference key in bytes.
const MaxKeyLength = 512

// ValidateKey checks that a preference key can be stored by every driver
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("key %.32q... is too long: %d bytes (maximum %d)", key, len(key), MaxKeyLength)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("key %q contains a control character", key)
		}
	}
	return nil
}

// ValidateIdentifier checks a SQL table name: a letter or underscore
// followed by letters, digits or underscores, and not a reserved word.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("identifier %q contains invalid character %q", name, r)
		}
	}
	if IsReservedColumnName(name) {
		return fmt.Errorf("'%s' is a reserved name", name)
	}
	return nil
}

// IsReservedColumnName checks if a name is reserved by the SQL storage
func IsReservedColumnName(name string) bool {
	reserved := []string{
		"key", "kind", "value",
		// SQL keywords that could cause issues
		"select", "from", "where", "order", "by", "group", "having",
		"insert", "update", "delete", "create", "drop", "alter", "table",
	}
	return slices.Contains(reserved, strings.ToLower(name))
}

// ValidateEnumNames checks the candidate names of an enumeration: at least
// one, none empty, no duplicates.
func ValidateEnumNames(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("enumeration has no values")
	}
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if name == "" {
			return fmt.Errorf("enumeration value %d has an empty name", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate enumeration name '%s'", name)
		}
		seen[name] = true
	}
	return nil
}
