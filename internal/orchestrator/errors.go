package orchestrator

import "errors"

// Sentinel errors describing why a run stopped.
var (
	ErrNoTrades    = errors.New("no trades fetched")
	ErrNoPrices    = errors.New("no historical prices fetched")
	ErrNoMatch     = errors.New("no trades matched to a reference price")
	ErrPersistence = errors.New("persist batch")
)
