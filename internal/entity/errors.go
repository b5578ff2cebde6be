package entity

import (
	"errors"
	"fmt"
)

// ErrInvalid matches every validation error raised by an entity setter.
//
//	if errors.Is(err, entity.ErrInvalid) { ... }
var ErrInvalid = errors.New("invalid entity value")

// OutOfBoundsError is returned when a numeric field is set outside its range.
type OutOfBoundsError struct {
	Field string
	Value int64
	Min   int64
	Max   int64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("%s out of bounds: %d not in [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

// Is reports whether target is ErrInvalid.
func (e *OutOfBoundsError) Is(target error) bool {
	return target == ErrInvalid
}

// UnexpectedValueError is returned when a field is malformed, such as an
// unknown currency code or an identifier with illegal characters.
type UnexpectedValueError struct {
	Field  string
	Value  string
	Reason string
}

func (e *UnexpectedValueError) Error() string {
	return fmt.Sprintf("unexpected value for %s %q: %s", e.Field, e.Value, e.Reason)
}

// Is reports whether target is ErrInvalid.
func (e *UnexpectedValueError) Is(target error) bool {
	return target == ErrInvalid
}

func checkBounds(field string, v, min, max int64) error {
	if v < min || v > max {
		return &OutOfBoundsError{Field: field, Value: v, Min: min, Max: max}
	}
	return nil
}

// Set runs setters in order and returns the first error.
// It stands in for fluent chaining:
//
//	err := entity.Set(
//	    func() error { return t.SetPrice(500) },
//	    func() error { return t.SetLength(30) },
//	)
func Set(setters ...func() error) error {
	for _, set := range setters {
		if err := set(); err != nil {
			return err
		}
	}
	return nil
}
