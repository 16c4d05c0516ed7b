package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("unit state conflict")
	ErrDuplicate  = errors.New("duplicate")
	ErrPermission = errors.New("permission denied")
	ErrTransient  = errors.New("store temporarily unavailable")
)

const (
	ReasonNotFound    = "not_found"
	ReasonSold        = "sold"
	ReasonNotAtOrigin = "not_at_origin"
	ReasonNotAtStore  = "not_at_store"
	ReasonReferenced  = "referenced"
)

type UnitConflict struct {
	ScanCode string `json:"scan_code"`
	Reason   string `json:"reason"`
}

// ConflictError rejects a whole batch and lists every unit that was not in the
// expected state when the batch was checked under lock.
type ConflictError struct {
	Units []UnitConflict
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Units))
	for _, unit := range e.Units {
		parts = append(parts, unit.ScanCode+"="+unit.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrConflict.Error(), strings.Join(parts, ","))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Permission(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermission, fmt.Sprintf(format, args...))
}
