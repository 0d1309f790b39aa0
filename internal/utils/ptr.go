package utils

import "strings"

func Ptr[T any](v T) *T {
	return &v
}

// OrDefault dereferences v, falling back to def when v is nil.
func OrDefault[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

// Returns nil on an empty or all whitespace string
func StringOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
