package accesscontrol

import apperrors "github.com/gridbasehq/gridbase/pkg/errors"

// Effect is the outcome of evaluating one check.
type Effect int

const (
	// EffectDefer means no layer expressed an opinion; another authority
	// (e.g. a role system) must decide.
	EffectDefer Effect = iota
	EffectAllow
	EffectDeny
	// EffectError marks a check that could not be evaluated. Siblings in the
	// same batch are unaffected.
	EffectError
)

func (e Effect) String() string {
	switch e {
	case EffectAllow:
		return "allow"
	case EffectDeny:
		return "deny"
	case EffectError:
		return "error"
	default:
		return "defer"
	}
}

// Result carries the effect plus the denial reason or evaluation fault.
type Result struct {
	Effect Effect
	// Denied holds the machine-readable denial when Effect is EffectDeny.
	Denied *apperrors.AppError
	// Err holds the underlying fault when Effect is EffectError.
	Err error
}

// Allowed reports whether the check passed outright.
func (r Result) Allowed() bool { return r.Effect == EffectAllow }

// Deferred reports whether no layer had an opinion.
func (r Result) Deferred() bool { return r.Effect == EffectDefer }

func allowed() Result  { return Result{Effect: EffectAllow} }
func deferred() Result { return Result{Effect: EffectDefer} }

func denied(e *apperrors.AppError) Result { return Result{Effect: EffectDeny, Denied: e} }
func failed(err error) Result             { return Result{Effect: EffectError, Err: err} }
