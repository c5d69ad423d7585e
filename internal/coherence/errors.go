package coherence

import "errors"

var (
	// ErrFetch marks a browser, network or render-timeout failure.
	ErrFetch = errors.New("fetch failed")
	// ErrParse marks a page whose chart object is missing or malformed.
	ErrParse = errors.New("parse failed")
)

// ErrNoSnapshot is returned while no snapshot has been populated yet.
var ErrNoSnapshot = errors.New("no snapshot available")
