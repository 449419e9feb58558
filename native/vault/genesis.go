package vault

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Allocation credits an account with base assets at genesis.
type Allocation struct {
	Address common.Address
	Assets  uint64
}

// Genesis describes the initial state of a vault.
type Genesis struct {
	Params      Params
	StartTime   uint64
	Admin       common.Address
	Rewarders   []common.Address
	Allocations []Allocation
}

// Validate checks the genesis description before it is applied.
func (g Genesis) Validate() error {
	if err := g.Params.Validate(); err != nil {
		return err
	}
	if g.Admin == (common.Address{}) {
		return errors.New("vault: genesis admin required")
	}
	seen := make(map[common.Address]struct{}, len(g.Rewarders))
	for _, rewarder := range g.Rewarders {
		if rewarder == (common.Address{}) {
			return errors.New("vault: genesis rewarder address required")
		}
		if _, dup := seen[rewarder]; dup {
			return fmt.Errorf("vault: duplicate genesis rewarder %s", rewarder.Hex())
		}
		seen[rewarder] = struct{}{}
	}
	for i, alloc := range g.Allocations {
		if alloc.Address == (common.Address{}) {
			return fmt.Errorf("vault: allocation %d: address required", i)
		}
		if alloc.Assets == 0 {
			return fmt.Errorf("vault: allocation %d: %w", i, ErrInvalidAmount)
		}
	}
	return nil
}
