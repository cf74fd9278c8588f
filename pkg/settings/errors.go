package settings

import "errors"

var (
	// ErrNotFound is returned by Get when no line's key matches.
	ErrNotFound = errors.New("settings: key not found")
	// ErrNoSpace is returned by Set when the resulting image would
	// exceed the fixed file size.
	ErrNoSpace = errors.New("settings: no space left in sector")
	// ErrEnd is returned by Enumerate once the cursor has passed the
	// last key=value pair.
	ErrEnd = errors.New("settings: enumeration complete")
	// ErrInvalidArg is returned by Set when key or value contains a
	// byte that would violate the codec's line grammar.
	ErrInvalidArg = errors.New("settings: invalid key or value")
)
