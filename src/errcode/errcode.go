// Package errcode holds the status codes returned by every step of a tree fit.
//
// The numeric loop never allocates errors: a step returns an ErrCode and the
// caller folds it into its own with |=. Conversion to an error value only
// happens at the API boundary through Err.
package errcode

import (
	stderrors "errors"
	"strings"

	"github.com/pkg/errors"
)

// ErrCode is a set of failure flags. The zero value means success.
type ErrCode uint32

const (
	Success ErrCode = 0

	PocaFailure ErrCode = 1 << iota
	BadDistance
	InversionError
	BadSetup
	DivergingConstraint
	SlowDivergingFit
	FastDivergingFit
	NonPositiveDefinite
)

var (
	ErrPocaFailure         = errors.New("treefit: poca failure")
	ErrBadDistance         = errors.New("treefit: bad distance")
	ErrInversion           = errors.New("treefit: matrix inversion failed")
	ErrBadSetup            = errors.New("treefit: bad setup")
	ErrDivergingConstraint = errors.New("treefit: diverging constraint")
	ErrSlowDivergingFit    = errors.New("treefit: slow diverging fit")
	ErrFastDivergingFit    = errors.New("treefit: fast diverging fit")
	ErrNonPositiveDefinite = errors.New("treefit: covariance not positive definite")
)

var flags = []struct {
	code ErrCode
	name string
	err  error
}{
	{PocaFailure, "PocaFailure", ErrPocaFailure},
	{BadDistance, "BadDistance", ErrBadDistance},
	{InversionError, "InversionError", ErrInversion},
	{BadSetup, "BadSetup", ErrBadSetup},
	{DivergingConstraint, "DivergingConstraint", ErrDivergingConstraint},
	{SlowDivergingFit, "SlowDivergingFit", ErrSlowDivergingFit},
	{FastDivergingFit, "FastDivergingFit", ErrFastDivergingFit},
	{NonPositiveDefinite, "NonPositiveDefinite", ErrNonPositiveDefinite},
}

// Failure reports whether any flag is set.
func (e ErrCode) Failure() bool { return e != Success }

// Has reports whether all bits of flag are set.
func (e ErrCode) Has(flag ErrCode) bool { return flag != 0 && e&flag == flag }

func (e ErrCode) String() string {
	if e == Success {
		return "Success"
	}
	var names []string
	rest := e
	for _, f := range flags {
		if e&f.code != 0 {
			names = append(names, f.name)
			rest &^= f.code
		}
	}
	if rest != 0 {
		names = append(names, "Unknown")
	}
	return strings.Join(names, "|")
}

// Err converts the code into an error. It returns nil on success. When more
// than one flag is set the sentinels are joined, so errors.Is matches each
// of them.
func (e ErrCode) Err() error {
	if e == Success {
		return nil
	}
	var errs []error
	rest := e
	for _, f := range flags {
		if e&f.code != 0 {
			errs = append(errs, f.err)
			rest &^= f.code
		}
	}
	if rest != 0 {
		errs = append(errs, errors.Errorf("treefit: unknown error code %#x", uint32(rest)))
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return stderrors.Join(errs...)
}
