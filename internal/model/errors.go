package model

import "errors"

// Structural mutation errors. Every failed mutation leaves the graph
// unchanged; callers decide user-visible messaging.
var (
	// ErrIncompatibleConnection is returned when two connections cannot be
	// linked: non-complementary kinds, disjoint type checks, or a link that
	// would make a block its own ancestor.
	ErrIncompatibleConnection = errors.New("incompatible connection")

	// ErrAlreadyConnected is returned when either side of a Connect call
	// already has a target. Callers must disconnect first.
	ErrAlreadyConnected = errors.New("connection already connected")

	// ErrDuplicateID is returned when a block or connection id collides
	// with one already indexed by the workspace.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrNotFound is returned when a block or connection id is not indexed
	// by the workspace.
	ErrNotFound = errors.New("not found")

	// ErrMalformedDocument is returned by document loading on unknown block
	// types, bad field values, or connection check mismatches. Loading is
	// all-or-nothing: the live workspace is never partially mutated.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrSerialization is returned when serialization detects a violated
	// link-symmetry invariant.
	ErrSerialization = errors.New("serialization failed")

	// ErrConcurrentModification is returned by mutators while a serialize
	// snapshot is in flight. The workspace is read-only for its duration.
	ErrConcurrentModification = errors.New("workspace is being serialized")
)
