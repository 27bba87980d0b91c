package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrInvalidParams          = errors.New("invalid parameters")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrOverflow               = errors.New("arithmetic overflow")
	ErrUnderflow              = errors.New("arithmetic underflow")
	ErrNumericDomain          = errors.New("input outside numeric domain")
	ErrPricing                = errors.New("price computation failed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientReserve    = errors.New("insufficient pool reserve")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrTradeTooSmall          = errors.New("trade below minimum size")
	ErrSlippageExceeded       = errors.New("slippage limit exceeded")
	ErrInvalidTimestamp       = errors.New("invalid timestamp")
	ErrInvalidReservedField   = errors.New("reserved field not zero")
	ErrReentrant              = errors.New("market operation already in progress")
	ErrAlreadyClaimed         = errors.New("winnings already claimed")
	ErrDuplicateVote          = errors.New("duplicate vote")
	ErrThresholdNotMet        = errors.New("vote threshold not met")
	ErrTooEarly               = errors.New("operation not yet permitted")
	ErrDisputeWindowClosed    = errors.New("dispute window closed")
	ErrPaused                 = errors.New("engine paused")
	ErrLockHeld               = errors.New("lock already held")
)
