package vault

import "github.com/holiman/uint256"

// VestingClock tracks the most recent reward injection. Rewards unlock
// linearly from LastDistribution to LastDistribution+VestingPeriod.
type VestingClock struct {
	VestingAmount    uint64
	LastDistribution uint64
	VestingPeriod    uint64
}

// Unvested returns the portion of vestingAmount still locked at now.
func Unvested(now, lastDistribution, vestingPeriod, vestingAmount uint64) (uint64, error) {
	if now < lastDistribution {
		return 0, ErrClockSkew
	}
	elapsed := now - lastDistribution
	if vestingPeriod == 0 {
		if vestingAmount == 0 {
			return 0, nil
		}
		return 0, ErrInvalidVestingPeriod
	}
	if elapsed >= vestingPeriod {
		return 0, nil
	}
	remaining := uint256.NewInt(vestingPeriod - elapsed)
	locked, overflow := new(uint256.Int).MulDivOverflow(remaining, uint256.NewInt(vestingAmount), uint256.NewInt(vestingPeriod))
	if overflow || !locked.IsUint64() {
		return 0, ErrOverflow
	}
	return locked.Uint64(), nil
}

// Unvested evaluates the clock at now.
func (c VestingClock) Unvested(now uint64) (uint64, error) {
	return Unvested(now, c.LastDistribution, c.VestingPeriod, c.VestingAmount)
}

// Vesting reports whether a non-zero injection is still inside its window.
func (c VestingClock) Vesting(now uint64) (bool, error) {
	if now < c.LastDistribution {
		return false, ErrClockSkew
	}
	if c.VestingAmount == 0 {
		return false, nil
	}
	return now-c.LastDistribution < c.VestingPeriod, nil
}

// Inject restarts the window with amount. The previous schedule is replaced,
// not accumulated.
func (c *VestingClock) Inject(now, amount uint64) {
	c.LastDistribution = now
	c.VestingAmount = amount
}
