package domain

import "errors"

// Sentinel errors for the domain package.
// Use errors.Is to check: errors.Is(err, domain.ErrInvalidRating)
var (
	ErrInvalidRating    = errors.New("domain: invalid rating")
	ErrInvalidAlgorithm = errors.New("domain: invalid algorithm")
	ErrInvalidWeights   = errors.New("domain: weights out of bounds")
	ErrUnknownDeck      = errors.New("domain: unknown deck")
	ErrUnknownCard      = errors.New("domain: unknown card")
)
