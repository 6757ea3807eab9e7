package strategy

import "errors"

// Input validation errors, checked before any I/O and never retried.
var (
	ErrInvalidInput      = errors.New("invalid classification input")
	ErrInvalidConfig     = errors.New("invalid strategy configuration")
	ErrInvalidWeights    = errors.New("hybrid weights must sum to 1.0")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Backend and lifecycle errors.
var (
	ErrModelInit             = errors.New("model initialization failed")
	ErrInference             = errors.New("model inference failed")
	ErrModelNotAvailable     = errors.New("model not available")
	ErrStrategyNotFound      = errors.New("strategy type not registered")
	ErrCapabilityUnsupported = errors.New("capability not supported by strategy")
)
