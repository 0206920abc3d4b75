package model

import "errors"

var (
	// ErrMalformedCandidate marks a candidate citation with an empty quote or invalid offsets
	ErrMalformedCandidate = errors.New("malformed candidate citation")

	// ErrUnknownFormat marks an unrecognized declared document format
	ErrUnknownFormat = errors.New("unknown document format")
)
