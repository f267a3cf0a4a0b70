package services

import (
	"strings"
)

// FieldViolation names one offending input field using the public JSON path.
type FieldViolation struct {
	Field   string
	Message string
}

// ValidationError lists every offending field of a request. It unwraps to the sentinel of the
// service that raised it so callers can keep using errors.Is.
type ValidationError struct {
	Kind       error
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+" "+v.Message)
	}
	prefix := "invalid input"
	if e.Kind != nil {
		prefix = e.Kind.Error()
	}
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}

// Fields returns the offending field paths in the order they were recorded.
func (e *ValidationError) Fields() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		out = append(out, v.Field)
	}
	return out
}

type violations struct {
	kind error
	list []FieldViolation
}

func newViolations(kind error) *violations {
	return &violations{kind: kind}
}

func (v *violations) add(field, message string) {
	v.list = append(v.list, FieldViolation{Field: field, Message: message})
}

func (v *violations) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "is required")
	}
}

func (v *violations) err() error {
	if len(v.list) == 0 {
		return nil
	}
	return &ValidationError{Kind: v.kind, Violations: v.list}
}
