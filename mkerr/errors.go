// Package mkerr defines the error kinds shared across the simulation core.
//
// Every kind is fatal at the rank that detects it: library code wraps and
// returns these sentinels, the driver logs the failing task and component
// names and aborts. Nothing is recovered silently.
package mkerr

import "errors"

var (
	// ErrConfiguration covers registration-time mistakes: duplicate or
	// reserved names, unknown referenced components, a bouncer bound to a
	// particle vector without an integrator, wrong subtype bindings.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvariant covers broken runtime invariants: exceeded cell-list
	// estimates, non-empty self-message in the single-node engine,
	// object-size vs mesh-vertices mismatch, cyclic task graphs.
	ErrInvariant = errors.New("invariant violation")

	// ErrExchange covers communicator failures.
	ErrExchange = errors.New("exchange error")

	// ErrChannelType is returned when a channel is re-created with a
	// different element type.
	ErrChannelType = errors.New("channel type conflict")

	// ErrRestart covers missing or malformed restart records.
	ErrRestart = errors.New("restart error")
)
