package state

import "errors"

var (
	// ErrInvalidCurve is returned when a set of points or a packed encoding does not describe a valid liquidity curve.
	ErrInvalidCurve = errors.New("invalid liquidity curve")
	// ErrInconsistentCurve indicates a curve operation produced a result that violates the curve invariants.
	// It is never caused by user input alone.
	ErrInconsistentCurve = errors.New("inconsistent liquidity curve")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidRoute      = errors.New("invalid route")

	// ErrNotAdjacent and ErrRouteLoop are returned by Route.Join when two routes cannot be composed.
	ErrNotAdjacent = errors.New("routes are not adjacent")
	ErrRouteLoop   = errors.New("joined route would contain a loop")
)
