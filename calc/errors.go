package calc

import (
	"errors"
	"fmt"
)

var (
	ErrCycle             = errors.New("dependency cycle")
	ErrDuplicateProducer = errors.New("variable written by more than one calculation")
	ErrUnknownVariable   = errors.New("unknown variable")
	ErrDuplicateVariable = errors.New("variable already declared")
	ErrUndefinedValue    = errors.New("variable has no value")
	ErrUndeclaredAccess  = errors.New("access not declared by calculation")
	ErrType              = errors.New("type mismatch")
)

// CalculationError is the single error kind returned by planning and
// execution. Calc names the calculation at fault, or is empty when the
// problem is not tied to one.
type CalculationError struct {
	Calc string
	Err  error
}

func (e *CalculationError) Error() string {
	if e.Calc == "" {
		return "calculation: " + e.Err.Error()
	}
	return fmt.Sprintf("calculation %s: %v", e.Calc, e.Err)
}

func (e *CalculationError) Unwrap() error {
	return e.Err
}
