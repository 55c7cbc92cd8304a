package services

import "errors"

// Cap violations on spends and claims are reported through SpendResult and
// ClaimResult. These errors are for registry and input validation.
var (
	ErrBotFleetFull        = errors.New("bot fleet is at capacity")
	ErrBotUsernameRequired = errors.New("bot username is required")
	ErrBotUsernameTaken    = errors.New("bot username already exists")
	ErrBotNotFound         = errors.New("bot not found")
	ErrInvalidBotPurpose   = errors.New("invalid bot purpose")
	ErrInvalidTrustLevel   = errors.New("trust level must be between 2 and 5")
	ErrInvalidBotCaps      = errors.New("bot activity caps must not be negative")

	ErrInvalidAmount      = errors.New("amount must be a positive integer")
	ErrInvalidAggression  = errors.New("aggression level must be between 1 and 10")
	ErrInvalidDailyCap    = errors.New("daily cap must not be negative")
	ErrDailyCapBelowSpent = errors.New("daily cap is below what was already spent today")
	ErrInvalidWalletCap   = errors.New("wallet cap must not be negative")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmptyContent       = errors.New("title and content are required")
	ErrThreadNotFound     = errors.New("thread not found")
)
