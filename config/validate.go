package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	nativevault "stakevault/native/vault"
)

func parseSeconds(field, raw string) (uint64, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("vault: %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("vault: %s must not be negative", field)
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("vault: %s must be a whole number of seconds", field)
	}
	return uint64(d / time.Second), nil
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

// Params converts the vault section into engine parameters.
func (v Vault) Params() (nativevault.Params, error) {
	vesting, err := parseSeconds("VestingPeriod", v.VestingPeriod)
	if err != nil {
		return nativevault.Params{}, err
	}
	cooldown, err := parseSeconds("Cooldown", v.Cooldown)
	if err != nil {
		return nativevault.Params{}, err
	}
	maxCooldown, err := parseSeconds("MaxCooldown", v.MaxCooldown)
	if err != nil {
		return nativevault.Params{}, err
	}
	params := nativevault.Params{
		Offset:        v.Offset,
		VestingPeriod: vesting,
		Cooldown:      cooldown,
		MaxCooldown:   maxCooldown,
		MinShares:     v.MinShares,
	}
	if err := params.Validate(); err != nil {
		return nativevault.Params{}, err
	}
	return params, nil
}

// ToVault validates the file contents and converts them into the genesis
// consumed by the store. now replaces a zero StartTime.
func (g Genesis) ToVault(now uint64) (nativevault.Genesis, error) {
	params, err := g.Vault.Params()
	if err != nil {
		return nativevault.Genesis{}, err
	}
	admin, err := parseAddress("access.Admin", g.Access.Admin)
	if err != nil {
		return nativevault.Genesis{}, err
	}
	out := nativevault.Genesis{
		Params:    params,
		StartTime: g.StartTime,
		Admin:     admin,
	}
	if out.StartTime == 0 {
		out.StartTime = now
	}
	for i, raw := range g.Access.Rewarders {
		addr, err := parseAddress(fmt.Sprintf("access.Rewarders[%d]", i), raw)
		if err != nil {
			return nativevault.Genesis{}, err
		}
		out.Rewarders = append(out.Rewarders, addr)
	}
	for i, alloc := range g.Allocations {
		addr, err := parseAddress(fmt.Sprintf("Allocations[%d]", i), alloc.Address)
		if err != nil {
			return nativevault.Genesis{}, err
		}
		out.Allocations = append(out.Allocations, nativevault.Allocation{Address: addr, Assets: alloc.Assets})
	}
	if err := out.Validate(); err != nil {
		return nativevault.Genesis{}, err
	}
	return out, nil
}
