package state

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrReferential   = errors.New("unresolved reference")
	ErrConfiguration = errors.New("not configured")
)

// Error carries the failing entity or field alongside one of the sentinel
// kinds above. errors.Is matches the sentinel.
type Error struct {
	Kind   error
	Entity string
	Fields []string
	Value  string
	msg    string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.Kind }

func NotFound(entity string, id any) error {
	return &Error{
		Kind:   ErrNotFound,
		Entity: entity,
		Value:  fmt.Sprint(id),
		msg:    fmt.Sprintf("%s %v not found", entity, id),
	}
}

// Invalid reports missing or malformed required fields.
func Invalid(entity string, fields ...string) error {
	verb := "is"
	if len(fields) > 1 {
		verb = "are"
	}
	return &Error{
		Kind:   ErrValidation,
		Entity: entity,
		Fields: fields,
		msg:    fmt.Sprintf("%s: %s %s required", entity, joinFields(fields), verb),
	}
}

// InvalidValue reports a field holding a value outside its allowed set.
func InvalidValue(entity, field, value string, allowed []string) error {
	return &Error{
		Kind:   ErrValidation,
		Entity: entity,
		Fields: []string{field},
		Value:  value,
		msg:    fmt.Sprintf("%s: invalid %s %q (allowed: %s)", entity, field, value, strings.Join(allowed, ", ")),
	}
}

// Rejected reports a field value that failed a format rule.
func Rejected(entity, field, value, reason string) error {
	return &Error{
		Kind:   ErrValidation,
		Entity: entity,
		Fields: []string{field},
		Value:  value,
		msg:    fmt.Sprintf("%s: invalid %s %q: %s", entity, field, value, reason),
	}
}

// Malformed reports input that could not be decoded at all.
func Malformed(entity string, err error) error {
	return &Error{
		Kind:   ErrValidation,
		Entity: entity,
		msg:    fmt.Sprintf("%s: malformed input: %v", entity, err),
	}
}

// Unresolved reports a reference that points at no stored record.
func Unresolved(entity, field string, value any) error {
	return &Error{
		Kind:   ErrReferential,
		Entity: entity,
		Fields: []string{field},
		Value:  fmt.Sprint(value),
		msg:    fmt.Sprintf("%s: %s %v does not exist", entity, field, value),
	}
}

func NotConfigured(what string) error {
	return &Error{
		Kind:   ErrConfiguration,
		Entity: what,
		msg:    what + " not configured",
	}
}

func joinFields(fields []string) string {
	switch len(fields) {
	case 0:
		return "field"
	case 1:
		return fields[0]
	case 2:
		return fields[0] + " and " + fields[1]
	}
	return strings.Join(fields[:len(fields)-1], ", ") + ", and " + fields[len(fields)-1]
}
