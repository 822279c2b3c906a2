// Package simerr defines the error codes raised when an organ's biomass or
// nitrogen bookkeeping would be violated. These are modelling-consistency
// failures: callers halt the run rather than retry.
package simerr

import (
	"errors"
	"fmt"
)

type Code string

const (
	// Supply/demand bookkeeping.
	CodeInsufficientSupply        Code = "E_INSUFFICIENT_SUPPLY"
	CodeNegativeSupply            Code = "E_NEGATIVE_SUPPLY"
	CodeAllocationExceedsCapacity Code = "E_ALLOCATION_EXCEEDS_CAPACITY"
	CodeAggregateDrift            Code = "E_AGGREGATE_DRIFT"

	// Preconditions and inputs.
	CodeNoCohort  Code = "E_NO_COHORT"
	CodeBadConfig Code = "E_BAD_CONFIG"
)

var knownCodes = map[Code]struct{}{
	CodeInsufficientSupply:        {},
	CodeNegativeSupply:            {},
	CodeAllocationExceedsCapacity: {},
	CodeAggregateDrift:            {},
	CodeNoCohort:                  {},
	CodeBadConfig:                 {},
}

func IsKnownCode(code Code) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Sentinels for errors.Is. They match any *Error carrying the same code.
var (
	ErrInsufficientSupply        = &Error{Code: CodeInsufficientSupply}
	ErrNegativeSupply            = &Error{Code: CodeNegativeSupply}
	ErrAllocationExceedsCapacity = &Error{Code: CodeAllocationExceedsCapacity}
	ErrAggregateDrift            = &Error{Code: CodeAggregateDrift}
	ErrNoCohort                  = &Error{Code: CodeNoCohort}
	ErrBadConfig                 = &Error{Code: CodeBadConfig}
)

// Error carries the failing operation and, for quantity checks, the amount
// requested against the amount that was available.
type Error struct {
	Code      Code
	Op        string
	Requested float64
	Available float64
	Msg       string
}

func New(code Code, op string, requested, available float64) *Error {
	return &Error{Code: code, Op: op, Requested: requested, Available: available}
}

func Newf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Msg)
	}
	if e.Op == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s (requested=%g, available=%g)", e.Op, e.Code, e.Requested, e.Available)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
