package tools

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"
)

// Validation helpers return nil when the value is acceptable. Use Check
// to report the first failure from a list.

// Required fails with "missing <field>" when value is blank.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing %s", field)
	}
	return nil
}

// Email fails when value is not a bare email address.
func Email(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != strings.TrimSpace(value) || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".") {
		return fmt.Errorf("%s %q is not a valid email address", field, value)
	}
	return nil
}

// OptionalEmail validates value only when it is set.
func OptionalEmail(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return Email(field, value)
}

// OneOf fails when value is not one of allowed. Matching is exact;
// normalize case before calling.
func OneOf(field, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
	}
	return nil
}

// OptionalOneOf validates value only when it is set.
func OptionalOneOf(field, value string, allowed []string) error {
	if value == "" {
		return nil
	}
	return OneOf(field, value, allowed)
}

// Positive fails when value is not greater than zero.
func Positive(field string, value float64) error {
	if value <= 0 {
		return fmt.Errorf("%s must be greater than zero", field)
	}
	return nil
}

// NonNegative fails when value is below zero.
func NonNegative(field string, value float64) error {
	if value < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}

// Date fails when a non-empty value is not YYYY-MM-DD.
func Date(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, value); err != nil {
		return fmt.Errorf("%s %q must be a date in YYYY-MM-DD form", field, value)
	}
	return nil
}

// Check returns the first non-nil error.
func Check(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
