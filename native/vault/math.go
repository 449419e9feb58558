package vault

import (
	"math"

	"github.com/holiman/uint256"
)

// MaxOffset bounds the virtual-share decimal padding.
const MaxOffset uint8 = 8

var pow10 = [...]uint64{1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000}

func virtualShares(offset uint8) (uint64, error) {
	if offset > MaxOffset {
		return 0, ErrInvalidOffset
	}
	return pow10[offset], nil
}

// SharesForAssets converts a deposit into shares against the vested asset
// pool. The virtual supply (10^offset) and the virtual asset (+1) both round
// against the depositor so a donation made right after launch cannot skew
// the price per share profitably.
func SharesForAssets(assets, totalSupply, effectiveAssets uint64, offset uint8) (uint64, error) {
	virtual, err := virtualShares(offset)
	if err != nil {
		return 0, err
	}
	if effectiveAssets == 0 {
		return assets, nil
	}
	supply := new(uint256.Int).SetUint64(totalSupply)
	supply.Add(supply, uint256.NewInt(virtual))
	pool := new(uint256.Int).SetUint64(effectiveAssets)
	pool.Add(pool, uint256.NewInt(1))

	shares, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(assets), supply, pool)
	if overflow || !shares.IsUint64() {
		return 0, ErrOverflow
	}
	if shares.IsZero() && assets > 0 {
		return 0, ErrZeroShares
	}
	return shares.Uint64(), nil
}

// AssetsForShares converts shares back into base assets. It is not the exact
// inverse of SharesForAssets; the bias is retained by the vault.
func AssetsForShares(shares, totalSupply, effectiveAssets uint64, offset uint8) (uint64, error) {
	virtual, err := virtualShares(offset)
	if err != nil {
		return 0, err
	}
	if totalSupply == 0 {
		return shares, nil
	}
	pool := new(uint256.Int).SetUint64(effectiveAssets)
	pool.Add(pool, uint256.NewInt(1))
	supply := new(uint256.Int).SetUint64(totalSupply)
	supply.Add(supply, uint256.NewInt(virtual))

	assets, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(shares), pool, supply)
	if overflow || !assets.IsUint64() {
		return 0, ErrOverflow
	}
	return assets.Uint64(), nil
}

func addU64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

func subU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}
