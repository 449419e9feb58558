package vault

import "errors"

// Arithmetic failures.
var (
	ErrOverflow             = errors.New("vault: arithmetic overflow")
	ErrClockSkew            = errors.New("vault: timestamp precedes last distribution")
	ErrInvalidVestingPeriod = errors.New("vault: vesting period must be positive")
	ErrInvalidOffset        = errors.New("vault: decimal offset out of range")
	ErrZeroShares           = errors.New("vault: deposit converts to zero shares")
	ErrZeroAssets           = errors.New("vault: redemption converts to zero assets")
	ErrInvariantViolated    = errors.New("vault: unvested rewards exceed total assets")
	ErrInvalidAmount        = errors.New("vault: amount must be positive")
	ErrInvalidCooldown      = errors.New("vault: cooldown exceeds configured maximum")
)

// Authorization failures.
var (
	ErrNotAdmin    = errors.New("vault: caller is not the admin")
	ErrNotRewarder = errors.New("vault: caller is not an approved rewarder")
	ErrBlacklisted = errors.New("vault: caller is blacklisted")
)

// Availability failures.
var (
	ErrAssetsUnavailable    = errors.New("vault: requested assets have not matured")
	ErrRewardVestingOngoing = errors.New("vault: previous reward is still vesting")
	ErrInsufficientShares   = errors.New("vault: insufficient share balance")
	ErrInsufficientAssets   = errors.New("vault: insufficient asset balance")
	ErrMinSharesViolation   = errors.New("vault: share supply below minimum")
	ErrPaused               = errors.New("vault: module paused")
)

var (
	errNilState  = errors.New("vault: state not configured")
	errNilTokens = errors.New("vault: token ledger not configured")
	errNoLedger  = errors.New("vault: ledger not initialised")
)

// IsAuthorization reports whether err stems from a failed capability check.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotAdmin) || errors.Is(err, ErrNotRewarder) || errors.Is(err, ErrBlacklisted)
}

// IsAvailability reports whether err signals that the request may succeed
// later without any change to its inputs.
func IsAvailability(err error) bool {
	switch {
	case errors.Is(err, ErrAssetsUnavailable),
		errors.Is(err, ErrRewardVestingOngoing),
		errors.Is(err, ErrInsufficientShares),
		errors.Is(err, ErrInsufficientAssets),
		errors.Is(err, ErrMinSharesViolation),
		errors.Is(err, ErrPaused):
		return true
	}
	return false
}

// IsValidation reports whether err rejects the inputs themselves.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrOverflow),
		errors.Is(err, ErrClockSkew),
		errors.Is(err, ErrInvalidVestingPeriod),
		errors.Is(err, ErrInvalidOffset),
		errors.Is(err, ErrZeroShares),
		errors.Is(err, ErrZeroAssets),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidCooldown):
		return true
	}
	return false
}
