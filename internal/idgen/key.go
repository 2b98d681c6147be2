package idgen

import (
	"fmt"
	"regexp"
)

var keyPattern = regexp.MustCompile(`^[a-z]([a-z0-9._-]*[a-z0-9])?$`)

// ValidateKey checks a user-provided key such as a policy name.
// Rules: lowercase letters, digits, dots, underscores and dashes; must start
// with a letter and end with a letter or digit; max 64 characters.
func ValidateKey(key string) error {
	if len(key) > 64 {
		return fmt.Errorf("too long (max 64 characters)")
	}
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("must match %s", keyPattern.String())
	}
	return nil
}
