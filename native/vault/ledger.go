package vault

import "fmt"

// Params groups the values fixed when a vault is created.
type Params struct {
	// Offset is the virtual-share decimal padding used by the conversions.
	Offset uint8
	// VestingPeriod is the length of the linear reward release window in
	// seconds.
	VestingPeriod uint64
	// Cooldown is the initial unstake cooldown in seconds.
	Cooldown uint64
	// MaxCooldown bounds every later cooldown update.
	MaxCooldown uint64
	// MinShares is the smallest non-zero share supply the vault accepts.
	// Zero disables the check.
	MinShares uint64
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	if p.Offset > MaxOffset {
		return ErrInvalidOffset
	}
	if p.VestingPeriod == 0 {
		return ErrInvalidVestingPeriod
	}
	if p.Cooldown > p.MaxCooldown {
		return fmt.Errorf("%w: %d > %d", ErrInvalidCooldown, p.Cooldown, p.MaxCooldown)
	}
	return nil
}

// Ledger is the aggregate accounting state of a vault. TotalAssets includes
// rewards that have not vested yet.
type Ledger struct {
	TotalAssets uint64
	Clock       VestingClock
	Cooldown    uint64
	MaxCooldown uint64
	MinShares   uint64
	Offset      uint8
}

// NewLedger builds an empty ledger whose vesting clock starts at now.
func NewLedger(params Params, now uint64) (*Ledger, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		Clock: VestingClock{
			LastDistribution: now,
			VestingPeriod:    params.VestingPeriod,
		},
		Cooldown:    params.Cooldown,
		MaxCooldown: params.MaxCooldown,
		MinShares:   params.MinShares,
		Offset:      params.Offset,
	}, nil
}

// Clone returns a copy that can be mutated independently.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// Unvested returns the locked portion of the latest reward at now.
func (l *Ledger) Unvested(now uint64) (uint64, error) {
	return l.Clock.Unvested(now)
}

// EffectiveAssets is TotalAssets minus the unvested reward; it is the pool
// used as the conversion denominator.
func (l *Ledger) EffectiveAssets(now uint64) (uint64, error) {
	unvested, err := l.Unvested(now)
	if err != nil {
		return 0, err
	}
	if unvested > l.TotalAssets {
		return 0, ErrInvariantViolated
	}
	return l.TotalAssets - unvested, nil
}

// PreviewStake computes the shares a deposit would mint without mutating the
// ledger.
func (l *Ledger) PreviewStake(assets, now, totalSupply uint64) (uint64, error) {
	if assets == 0 {
		return 0, ErrInvalidAmount
	}
	effective, err := l.EffectiveAssets(now)
	if err != nil {
		return 0, err
	}
	return SharesForAssets(assets, totalSupply, effective, l.Offset)
}

// PreviewUnstake computes the assets a redemption would release without
// mutating the ledger.
func (l *Ledger) PreviewUnstake(shares, now, totalSupply uint64) (uint64, error) {
	if shares == 0 {
		return 0, ErrInvalidAmount
	}
	if shares > totalSupply {
		return 0, ErrInsufficientShares
	}
	effective, err := l.EffectiveAssets(now)
	if err != nil {
		return 0, err
	}
	assets, err := AssetsForShares(shares, totalSupply, effective, l.Offset)
	if err != nil {
		return 0, err
	}
	if assets == 0 {
		return 0, ErrZeroAssets
	}
	return assets, nil
}

// Stake records a deposit and returns the shares the host must mint.
func (l *Ledger) Stake(assets, now, totalSupply uint64) (uint64, error) {
	shares, err := l.PreviewStake(assets, now, totalSupply)
	if err != nil {
		return 0, err
	}
	total, err := addU64(l.TotalAssets, assets)
	if err != nil {
		return 0, err
	}
	l.TotalAssets = total
	return shares, nil
}

// StartUnstake removes the redeemed assets from the pool and returns them
// together with the maturity time the cooldown entry must carry.
func (l *Ledger) StartUnstake(shares, now, totalSupply uint64) (assets, maturity uint64, err error) {
	assets, err = l.PreviewUnstake(shares, now, totalSupply)
	if err != nil {
		return 0, 0, err
	}
	maturity, err = addU64(now, l.Cooldown)
	if err != nil {
		return 0, 0, err
	}
	total, err := subU64(l.TotalAssets, assets)
	if err != nil {
		return 0, 0, ErrInvariantViolated
	}
	l.TotalAssets = total
	return assets, maturity, nil
}

// Reward adds amount to the pool and restarts the vesting window. A new
// reward is refused until the previous one has fully vested.
func (l *Ledger) Reward(amount, now uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	vesting, err := l.Clock.Vesting(now)
	if err != nil {
		return err
	}
	if vesting {
		return ErrRewardVestingOngoing
	}
	total, err := addU64(l.TotalAssets, amount)
	if err != nil {
		return err
	}
	l.TotalAssets = total
	l.Clock.Inject(now, amount)
	return nil
}

// SetCooldown updates the cooldown applied to future unstakes.
func (l *Ledger) SetCooldown(duration uint64) error {
	if duration > l.MaxCooldown {
		return fmt.Errorf("%w: %d > %d", ErrInvalidCooldown, duration, l.MaxCooldown)
	}
	l.Cooldown = duration
	return nil
}

// SetVestingPeriod updates the release window. The change is refused while a
// reward is vesting since a longer window would re-lock released assets.
func (l *Ledger) SetVestingPeriod(period, now uint64) error {
	if period == 0 {
		return ErrInvalidVestingPeriod
	}
	vesting, err := l.Clock.Vesting(now)
	if err != nil {
		return err
	}
	if vesting {
		return ErrRewardVestingOngoing
	}
	l.Clock.VestingPeriod = period
	return nil
}

// CheckMinShares validates a prospective share supply.
func (l *Ledger) CheckMinShares(supply uint64) error {
	if supply > 0 && supply < l.MinShares {
		return fmt.Errorf("%w: %d < %d", ErrMinSharesViolation, supply, l.MinShares)
	}
	return nil
}
